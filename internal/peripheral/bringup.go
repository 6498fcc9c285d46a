package peripheral

import (
	"context"
	"fmt"
)

// Start runs bring-up once: register callbacks, enable the stack, start
// advertising. ctx bounds the peripheral's background work and must live as
// long as the peripheral does.
func (p *Peripheral) Start(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := p.stack.Register(p.table, p); err != nil {
		p.logger.WithError(err).Error("Callback registration failed")
		return &BringupError{Stage: StageRegister, Err: fmt.Errorf("%w: %w", ErrStackInit, err)}
	}

	if err := p.stack.Enable(ctx); err != nil {
		p.logger.WithError(err).Error("Bluetooth init failed")
		return &BringupError{Stage: StageEnable, Err: fmt.Errorf("%w: %w", ErrStackInit, err)}
	}
	p.logger.Info("Bluetooth initialized")

	if len(p.opts.sources) > 0 {
		p.mu.Lock()
		p.sampling = runSamples(ctx, p.opts.sampleInterval, p.opts.sources, p.logger, p.emit)
		p.mu.Unlock()
	}

	params := AdvParams{Connectable: true, Name: p.opts.name}
	if err := p.stack.Advertise(ctx, params, p.payload); err != nil {
		p.logger.WithError(err).Error("Advertising failed to start")
		return &BringupError{Stage: StageAdvertise, Err: fmt.Errorf("%w: %w", ErrAdvertisingStart, err)}
	}
	p.logger.WithField("name", p.opts.name).Info("Advertising successfully started")
	return nil
}

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blup/internal/advert"
	"github.com/srg/blup/internal/gatt"
	"github.com/srg/blup/internal/peripheral"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the attribute table and advertising data",
		Long: `Print the GATT attribute table served by 'blup serve', with handles,
permissions and characteristic properties, followed by the raw advertising
payload and the scan response carrying the device name. No Bluetooth hardware
is touched.`,
		Args: cobra.NoArgs,
		RunE: runTable,
	}
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

type attributeJSON struct {
	Handle     uint16 `json:"handle"`
	Type       string `json:"type"`
	Kind       string `json:"kind"`
	Perm       string `json:"perm"`
	Properties string `json:"properties,omitempty"`
	Value      string `json:"value,omitempty"`
	Name       string `json:"name,omitempty"`
}

type tableJSON struct {
	Service     string          `json:"service"`
	DeviceName  string          `json:"device_name"`
	Advertising string          `json:"advertising"`
	ScanResp    string          `json:"scan_response"`
	Attributes  []attributeJSON `json:"attributes"`
}

func runTable(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	// the table is built without a stack; nothing is started
	p := peripheral.New(nil, logger, peripheral.WithName(cfg.DeviceName))

	adv := p.Advertisement().Bytes()
	sr, err := advert.ScanResponse(cfg.DeviceName)
	if err != nil {
		return fmt.Errorf("failed to encode scan response: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		return writeTableJSON(cmd.OutOrStdout(), p.Table(), cfg.DeviceName, adv, sr.Bytes())
	}
	return writeTableText(cmd.OutOrStdout(), p.Table(), cfg.DeviceName, adv, sr.Bytes())
}

// attributeName names the attribute after the service or characteristic it belongs to.
func attributeName(t *gatt.Table, a *gatt.Attribute) string {
	switch {
	case a.Kind == gatt.KindService:
		return t.Service().UUID.KnownName()
	case a.Desc != nil:
		return a.Type.KnownName()
	case a.Char != nil:
		return a.Char.UUID.KnownName()
	default:
		return a.Type.KnownName()
	}
}

func attributeProps(a *gatt.Attribute) string {
	if a.Kind == gatt.KindCharacteristicDecl && a.Char != nil {
		return a.Char.Props.String()
	}
	return ""
}

func writeTableText(w io.Writer, t *gatt.Table, name string, adv, sr []byte) error {
	svc := t.Service().UUID
	title := paint(color.New(color.Bold, color.FgCyan), fmt.Sprintf("Service %s (%s)", svc, svc.KnownName()), colorEnabled(w))
	if _, err := fmt.Fprintf(w, "%s\n\n", title); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "HANDLE\tTYPE\tKIND\tPERM\tPROPERTIES\tNAME")
	for _, a := range t.Attributes() {
		fmt.Fprintf(tw, "0x%04x\t%s\t%s\t%s\t%s\t%s\n",
			uint16(a.Handle), a.Type, a.Kind, a.Perm, attributeProps(a), attributeName(t, a))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\nAdvertising data: % x\nScan response: % x\nDevice name: %s\n", adv, sr, name)
	return err
}

func writeTableJSON(w io.Writer, t *gatt.Table, name string, adv, sr []byte) error {
	out := tableJSON{
		Service:     t.Service().UUID.String(),
		DeviceName:  name,
		Advertising: hex.EncodeToString(adv),
		ScanResp:    hex.EncodeToString(sr),
	}
	for _, a := range t.Attributes() {
		out.Attributes = append(out.Attributes, attributeJSON{
			Handle:     uint16(a.Handle),
			Type:       a.Type.String(),
			Kind:       a.Kind.String(),
			Perm:       a.Perm.String(),
			Properties: attributeProps(a),
			Value:      hex.EncodeToString(a.Value),
			Name:       attributeName(t, a),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

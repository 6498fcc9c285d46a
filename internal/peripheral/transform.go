package peripheral

// Transform returns a copy of p with ASCII lowercase letters replaced by
// their uppercase equivalents. All other bytes pass through unchanged;
// multi-byte encodings are not interpreted.
func Transform(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	upper(out)
	return out
}

func upper(b []byte) {
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
}

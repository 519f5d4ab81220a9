package layout

// Encode lays values out according to l, left-aligning each value in its
// field and padding with spaces. Values longer than their field are
// truncated; fields with no value are left blank.
func Encode(values map[string]string, l FrameLayout) []byte {
	out := make([]byte, 0, l.TotalLength())
	for _, f := range l.Fields {
		v := []byte(values[f.Name])
		if len(v) > f.Length {
			v = v[:f.Length]
		}
		out = append(out, v...)
		for i := len(v); i < f.Length; i++ {
			out = append(out, ' ')
		}
	}
	return out
}

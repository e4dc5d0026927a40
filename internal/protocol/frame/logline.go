package frame

// MaxLogLine bounds one NCP console line.
const MaxLogLine = 128

// LineBuffer reassembles NCP console output into lines. Tabs and bytes
// 32..127 are kept; CR, LF or a full buffer flushes.
type LineBuffer struct {
	line []byte
}

func (l *LineBuffer) Write(p []byte, emit func(string)) {
	for _, c := range p {
		if c == '\t' || (c >= 32 && c <= 127) {
			l.line = append(l.line, c)
		}
		if len(l.line) != 0 && (c == '\n' || c == '\r' || len(l.line) >= MaxLogLine) {
			emit(string(l.line))
			l.line = l.line[:0]
		}
	}
}

// Pending returns the unflushed partial line.
func (l *LineBuffer) Pending() string {
	return string(l.line)
}

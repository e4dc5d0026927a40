package transport

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

const DefaultBaud = 115200

// OpenSerial opens a serial device at 8N1 with DTR and RTS asserted.
func OpenSerial(path string, baud int) (Transport, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	open := func() (io.ReadWriteCloser, error) {
		port, err := serial.Open(path, mode)
		if err != nil {
			return nil, fmt.Errorf("transport: open %s: %w", path, err)
		}
		_ = port.SetDTR(true)
		_ = port.SetRTS(true)
		return port, nil
	}
	flush := func(dev io.ReadWriteCloser) error {
		port, ok := dev.(serial.Port)
		if !ok {
			return nil
		}
		if err := port.ResetInputBuffer(); err != nil {
			return err
		}
		return port.ResetOutputBuffer()
	}
	return newLink("serial("+path+")", open, flush)
}

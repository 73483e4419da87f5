package signaling

import (
	"bufio"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/tarm/serial"
)

// ButtonHandler receives one button token per press.
type ButtonHandler interface {
	HandleButton(buttonNo string) error
}

// ButtonBox reads replay button presses from the totem's button board over a
// COM port. The firmware sends each token followed by a semicolon.
type ButtonBox struct {
	port     *serial.Port
	portName string
	baud     int
	mutex    sync.Mutex
	callback func(string) error
}

// NewButtonBox creates a button box listener. callback runs once per press
// with the raw button token.
func NewButtonBox(portName string, baud int, callback func(string) error) *ButtonBox {
	return &ButtonBox{
		portName: portName,
		baud:     baud,
		callback: callback,
	}
}

// Connect opens the serial port and starts listening for presses.
func (b *ButtonBox) Connect() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.port != nil {
		return nil
	}

	config := &serial.Config{
		Name: b.portName,
		Baud: b.baud,
	}

	port, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %v", err)
	}

	b.port = port
	go b.listen()

	return nil
}

func (b *ButtonBox) listen() {
	reader := bufio.NewReader(b.port)
	var buffer strings.Builder

	for {
		c, err := reader.ReadByte()
		if err != nil {
			log.Printf("Error reading from serial port: %v", err)
			break
		}

		// Tokens are semicolon-terminated.
		if c == ';' {
			if buffer.Len() > 0 {
				token := buffer.String()
				buffer.Reset()
				if b.callback != nil {
					if err := b.callback(token); err != nil {
						log.Printf("Error handling button %q: %v", token, err)
					}
				}
			}
		} else {
			buffer.WriteByte(c)
		}
	}
}

// HandleButton feeds a press through the callback directly, bypassing the
// serial port. Used by the totem's on-screen button.
func (b *ButtonBox) HandleButton(buttonNo string) error {
	if b.callback != nil {
		return b.callback(buttonNo)
	}
	return nil
}

// Close closes the serial port connection.
func (b *ButtonBox) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.port != nil {
		err := b.port.Close()
		b.port = nil
		return err
	}
	return nil
}

package decksvc

import "fmt"

type unknownDeviceError struct {
	id string
}

func errUnknownDevice(id string) error {
	return unknownDeviceError{id: id}
}

func (e unknownDeviceError) Error() string {
	return fmt.Sprintf("no live session for device %s", e.id)
}

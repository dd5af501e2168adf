package engine

import "runtime"

// Device describes the rendering device an engine instance is bound to.
type Device struct {
	Name     string
	Headless bool
}

// HeadlessDevice returns the device used when nothing is presented on
// screen.
func HeadlessDevice() *Device {
	return &Device{
		Name:     "headless-" + runtime.GOOS + "-" + runtime.GOARCH,
		Headless: true,
	}
}

// DeviceProvider resolves the device a worker should use. A nil device with
// a nil error means no device is available.
type DeviceProvider interface {
	Device() (*Device, error)
}

// DeviceProviderFunc adapts a function to DeviceProvider.
type DeviceProviderFunc func() (*Device, error)

// Device implements DeviceProvider.
func (f DeviceProviderFunc) Device() (*Device, error) {
	return f()
}

// DefaultDeviceProvider always yields a headless device.
var DefaultDeviceProvider DeviceProvider = DeviceProviderFunc(func() (*Device, error) {
	return HeadlessDevice(), nil
})

//go:build !linux || !cgo

package nvidia

import "os"

func libraryReadable(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// openNVML returns a Library whose Init always fails; NVML bindings are only
// built for linux with cgo.
func openNVML(string) Library {
	return unsupportedLibrary{}
}

type unsupportedLibrary struct{}

func (unsupportedLibrary) Init() error                    { return ErrUnsupportedPlatform }
func (unsupportedLibrary) Shutdown() error                { return nil }
func (unsupportedLibrary) HasSymbol(string) bool          { return false }
func (unsupportedLibrary) DriverVersion() (string, error) { return "", ErrUnsupportedPlatform }
func (unsupportedLibrary) NVMLVersion() (string, error)   { return "", ErrUnsupportedPlatform }
func (unsupportedLibrary) DeviceCount() (int, error)      { return 0, ErrUnsupportedPlatform }
func (unsupportedLibrary) DeviceByPCIBusID(string) (Device, error) {
	return nil, ErrUnsupportedPlatform
}

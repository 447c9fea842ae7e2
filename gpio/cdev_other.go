//go:build !linux

package gpio

import "github.com/pkg/errors"

// CdevPin is only available on Linux.
type CdevPin struct{}

func OpenCdev(chip string, offset int) (*CdevPin, error) {
	return nil, errors.New("gpio character device requires linux")
}

func (p *CdevPin) High() error  { return errors.New("gpio character device requires linux") }
func (p *CdevPin) Low() error   { return errors.New("gpio character device requires linux") }
func (p *CdevPin) Close() error { return nil }

// ABOUTME: Local file opener for the vfs source backend
// ABOUTME: Accepts plain paths and file: URIs
package source

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

func openFile(location string) (io.ReadCloser, error) {
	path := location
	if strings.HasPrefix(strings.ToLower(location), "file:") {
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("parse file url: %w", err)
		}
		path = u.Path
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

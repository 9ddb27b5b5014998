package app

import (
	"log"
	"mime"

	"github.com/opscrm/opscrm/internal/payroll/registry"
)

func init() {
	ensureMimeType(".xlsx", registry.XLSXContentType)
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}

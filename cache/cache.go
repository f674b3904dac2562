package cache

import (
	"context"

	"github.com/zlnvch/deskfolio/models"
)

type DeskfolioCache interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func(message []byte)) error

	// GetFile reports found=false on a cache miss.
	GetFile(ctx context.Context, fileId string) (file models.File, found bool, err error)
	SetFile(ctx context.Context, file models.File) error
	InvalidateFile(ctx context.Context, fileId string) error
}

// FileChannel is the pub/sub channel carrying events for one file.
func FileChannel(fileId string) string {
	return "file:{" + fileId + "}:events"
}

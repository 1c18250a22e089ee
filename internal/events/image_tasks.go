package events

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"catalog-import-service/internal/models"
)

// ImageTaskSubject is consumed by the media worker that downloads product
// images out of band. The import pipeline only enqueues tasks.
const ImageTaskSubject = "import.image.tasks"

// ImageTaskPublisher enqueues image-fetch tasks over NATS
type ImageTaskPublisher struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewImageTaskPublisher connects to NATS and returns the publisher
func NewImageTaskPublisher(logger *logrus.Logger) (*ImageTaskPublisher, error) {
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats.nats.svc.cluster.local:4222"
	}

	nc, err := nats.Connect(natsURL,
		nats.Name("catalog-import-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &ImageTaskPublisher{
		conn:   nc,
		logger: logger.WithField("component", "image-tasks"),
	}, nil
}

// Publish enqueues one image-fetch task. Failures are logged and returned but
// never fail the row that produced them; images are best-effort.
func (p *ImageTaskPublisher) Publish(task models.ImportImageTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal image task: %w", err)
	}
	if err := p.conn.Publish(ImageTaskSubject, data); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"jobId":     task.JobID,
			"productId": task.ProductID,
		}).Error("Failed to publish image task")
		return err
	}
	return nil
}

// Close drains the connection so queued publishes flush before shutdown
func (p *ImageTaskPublisher) Close() {
	if p.conn != nil {
		if err := p.conn.Drain(); err != nil {
			p.conn.Close()
		}
	}
}

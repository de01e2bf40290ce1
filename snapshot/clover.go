package snapshot

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

const cloverCollection = "snapshots"

type CloverConfig struct {
	Name string `json:"name"`
}

// CloverStorage keeps one document per snapshot name in an embedded
// CloverDB directory. Record bytes are stored base64 encoded because
// compressed records are not valid UTF-8.
type CloverStorage struct {
	db     *clover.DB
	logger types.Logger
	name   string
}

func NewCloverStorage(logger types.Logger, config *types.SnapshotConfig) (*CloverStorage, error) {
	if config.Path == "" {
		return nil, types.Errorf(types.ErrStorageConfigInvalid, "clover storage requires a path")
	}

	cloverConfig := &CloverConfig{Name: "cache"}
	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, cloverConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal clover snapshot config")
		}
	}

	db, err := clover.Open(config.Path)
	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	exists, err := db.HasCollection(cloverCollection)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := db.CreateCollection(cloverCollection); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	logger.Info("CloverDB snapshot storage opened", zap.String("path", config.Path))

	return &CloverStorage{
		db:     db,
		logger: logger,
		name:   cloverConfig.Name,
	}, nil
}

func (c *CloverStorage) query() *clover.Query {
	return c.db.Query(cloverCollection).Where(clover.Field("name").Eq(c.name))
}

func (c *CloverStorage) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := c.query().FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to find snapshot document")
	}

	if len(docs) == 0 {
		return nil, types.Errorf(types.ErrSnapshotNotFound, "name: %s", c.name)
	}

	encoded, ok := docs[0].Get("data").(string)
	if !ok {
		return nil, types.Errorf(types.ErrSnapshotMalformed, "document data is not a string")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, types.Errorf(types.ErrSnapshotMalformed, "document data: %v", err)
	}

	return data, nil
}

func (c *CloverStorage) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(data)
	now := time.Now().UnixNano()

	count, err := c.query().Count()
	if err != nil {
		return types.WrapError(err, "failed to count snapshot documents")
	}

	if count > 0 {
		err = c.query().Update(map[string]interface{}{
			"data":       encoded,
			"updated_at": now,
		})
		return types.WrapError(err, "failed to update snapshot document")
	}

	doc := clover.NewDocument()
	doc.Set("name", c.name)
	doc.Set("data", encoded)
	doc.Set("updated_at", now)

	return types.WrapError(c.db.Insert(cloverCollection, doc), "failed to insert snapshot document")
}

func (c *CloverStorage) Close() error {
	return types.WrapError(c.db.Close(), "failed to close CloverDB")
}

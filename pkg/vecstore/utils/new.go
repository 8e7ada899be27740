package vecstoreutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/keyframeco/prism/pkg/vecstore"
	"github.com/keyframeco/prism/pkg/vecstore/inmemory"
	"github.com/keyframeco/prism/pkg/vecstore/qdrant"
	"github.com/keyframeco/prism/pkg/vecstore/sqlitevec"
)

type NewDriverOpts struct {
	DriverType string
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	SQLitePath string
	Logger     *zap.Logger
}

func NewDriver(o *NewDriverOpts) (vecstore.Driver, error) {
	switch o.DriverType {
	case "qdrant":
		return qdrant.NewDriver(qdrant.Config{
			Host:   o.Host,
			Port:   o.Port,
			APIKey: o.APIKey,
			UseTLS: o.UseTLS,
		}, o.Logger)
	case "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			Path: o.SQLitePath,
		}, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("%w: %s", vecstore.ErrDriverNotSupported, o.DriverType)
	}
}

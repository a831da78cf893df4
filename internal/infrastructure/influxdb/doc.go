// Package influxdb records relay metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - dispatch: one point per remote call (tags kind, target, outcome)
//   - trigger: one point per binding activation (tags binding, source, shape, outcome)
//   - reload: one point per bindings table reload
//
// Every point also carries a controller tag.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Controller.Name)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	processor := engine.NewProcessor(table, engine.Deps{
//	    Index:    index,
//	    Store:    store,
//	    Client:   remote,
//	    Observer: client,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval and never block the caller; async write
// failures are reported through SetOnError.
package influxdb

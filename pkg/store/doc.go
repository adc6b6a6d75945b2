// Package store persists the raw result document of a batch run.
//
// A document wraps every request slot together with the input row that
// produced it:
//
//	{
//	  "run_id": "…",
//	  "vendor": "acme",
//	  "scraper_issues": true,
//	  "records": [
//	    {"index": 0, "input": {"lat": "35.1"}, "data": {...}, "resolved": true, "time": "…"},
//	    {"index": 1, "input": {"lat": "35.2"}, "data": -1, "resolved": false, "time": "…"}
//	  ]
//	}
//
// Unresolved slots carry -1 as data and set scraper_issues on the document.
//
// # Backends
//
// FSStore writes one JSON file per run under
// <base>/raw/<vendor>/<YYYY-MM-DD_HH-MM-SS>_<vendor>.json and creates the
// vendor's raw/ and clean/ folders on first use.
//
// RedisStore keeps documents under deterministic keys with a TTL:
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	st := store.NewRedisStore(redisClient, 24*time.Hour)
//
//	doc, err := store.BuildDocument("acme", rows, report)
//	if err != nil {
//		return err
//	}
//	key := store.KeyFor(doc)
//	if err := st.Save(ctx, key, doc); err != nil {
//		return err
//	}
//
// # Metrics
//
//   - batchfetch_store_writes_total{backend} - documents written
//   - batchfetch_store_errors_total{backend,operation} - failed operations
package store

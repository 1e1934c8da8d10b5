// Package harvest turns one logical feature-service query into a complete,
// ordered record stream.
//
// The stream walks the identifier space in fixed-width windows
// (id >= min AND id < max). After EmptyWindowThreshold consecutive empty
// windows it asks the service whether anything exists past the cursor at all;
// if so, a binary search over existence probes relocates the cursor past the
// gap, otherwise the harvest is complete.
//
// Usage:
//
//	engine, err := harvest.New(ctx, service.Query{LayerURL: layerURL}, harvest.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	for rec, err := range engine.Stream().All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(rec.Attributes())
//	}
package harvest

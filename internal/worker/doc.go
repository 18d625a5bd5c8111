// Package worker runs tags as a Redis Streams service.
//
// The worker joins a consumer group on the invocation stream. Each entry
// carries a JSON request in its "data" field:
//
//	{"request_id": "...", "guild_id": "1", "channel_id": "2",
//	 "author": {"id": "3", "name": "kim", "roles": [{"id": "4", "name": "Mod"}]},
//	 "tag": "rules", "args": "2"}
//
// The tag is invoked through tags.Service with author, channel and server
// adapters, its require and blacklist gates are applied, and the result is
// published as {"data": InvokeResult} on the result stream. Failed requests
// are published to "<result stream>.errors" with a user-facing message.
//
// Example usage:
//
//	w := worker.NewWorker(cfg, redisClient, service, logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
//	health := worker.NewHealthServer(cfg.HealthPort, redisClient, cfg.InvokeStream, w.Running, logger)
//	health.Start()
//	defer health.Stop()
package worker

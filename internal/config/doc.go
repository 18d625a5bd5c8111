// Package config loads the tags worker settings from the environment.
//
// Settings fall into four groups: Redis connection and key prefix, the
// invoke and result streams, TagScript limits, and the optional Discord
// frontend. Everything but DISCORD_TOKEN has a default; without a token the
// worker serves the streams only.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if cfg.DiscordEnabled() {
//	    // start the bot
//	}
package config

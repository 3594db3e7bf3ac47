// Package config provides configuration parsing for proxycop.
//
// The configuration is stored in proxycop.json. Every field has a default,
// so an empty object (or no file at all) yields a working setup. A handful
// of deployment settings can be overridden through PROXYCOP_* environment
// variables.
//
// # Configuration File Structure
//
//	{
//	  "proxy": {
//	    "addr": ":8080",
//	    "uiHost": "proxy.cop",
//	    "visitGrace": "30s"
//	  },
//	  "ui": {
//	    "addr": ":8081",
//	    "liveInterval": "1s"
//	  },
//	  "store": {
//	    "path": "data.db"
//	  },
//	  "seed": {
//	    "blacklist": ["www.reddit.com", "reddit.com"],
//	    "cooldowns": {"news.ycombinator.com": 1}
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "path": "/metrics"
//	  },
//	  "backup": {
//	    "bucket": "proxycop-backups",
//	    "region": "us-east-1"
//	  }
//	}
package config

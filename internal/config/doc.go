// Package config provides configuration parsing for the slicestore command.
//
// The configuration is stored in slicestore.json. Every setting can be
// overridden by a SLICESTORE_* environment variable, applied after the file
// is read.
//
// # Configuration File Structure
//
//	{
//	  "name": "todo-app",
//	  "devtools": {
//	    "host": "localhost",
//	    "port": 4100,
//	    "readOnly": false,
//	    "metrics": true,
//	    "allowedOrigins": ["http://localhost:3000"]
//	  },
//	  "storage": {
//	    "driver": "sqlite",
//	    "dsn": "slicestore.db"
//	  },
//	  "persist": {
//	    "name": "todo-app",
//	    "version": 2,
//	    "debounce": "250ms",
//	    "exclude": ["session"]
//	  },
//	  "middleware": {
//	    "strict": true,
//	    "logActions": true,
//	    "tracing": false
//	  },
//	  "log": {
//	    "level": "debug",
//	    "format": "json"
//	  },
//	  "slices": [
//	    {"key": "todos", "initial": []},
//	    {"key": "filter", "initial": "all"}
//	  ]
//	}
//
// # Environment
//
//	SLICESTORE_DEVTOOLS_PORT=4200
//	SLICESTORE_STORAGE_DRIVER=s3
//	SLICESTORE_STORAGE_BUCKET=my-bucket
//	SLICESTORE_LOG_LEVEL=warn
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Devtools:", cfg.DevtoolsURL())
package config

package main

import (
	_ "github.com/opentrail/trailship/transport/tcp"
	_ "github.com/opentrail/trailship/transport/tls"
)

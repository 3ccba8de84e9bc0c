package inferflow

var Version = "v0.1.0"

package main

// StartFlags Flag structs to decouple cobra from logic for testing.
type StartFlags struct {
	ConfigPath     string
	Debug          bool
	PortRangeStart int
	LogLevel       string
	LogFormat      string
	LogDir         string
	StatusListen   string
}

type ConnectFlags struct {
	ConfigPath string
	Name       string
	Raw        bool
}

type ConfigFlags struct {
	ConfigPath string
	JSON       bool
}

type StatusFlags struct {
	ConfigPath string
	URL        string
	Name       string
	JSON       bool
}

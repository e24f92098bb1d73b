package model

// params for Flags
type CommandLineFlags struct {
	Host   *string `json:"host"`
	Port   *string `json:"port"`
	Stdin  *bool   `json:"stdin"`
	Format *string `json:"format"`
	Config *string `json:"config"`
}

package satellite

// Version is reported by the get_version CSCP command.
const Version = "0.1.0"

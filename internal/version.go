package internal

// Version is the driver version sent in the handshake client metadata.
const Version = "0.1.0"

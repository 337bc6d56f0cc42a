// Package desfire implements the DESFire EV1 AES secure-channel handshake,
// CMAC engine, and command transceiver as a small set of Go types: a
// Session holds authenticated state, TxMode/RxMode describe how a command
// is framed, and Reader is the only hardware dependency.
package desfire

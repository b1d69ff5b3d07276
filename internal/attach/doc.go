// Package attach relays raw bytes between a supervised process and an
// operator terminal over loopback UDP.
//
// Every attachable process owns two ports, assigned per process spec so they
// survive restarts. The process side binds 127.0.0.1:<process_port>: each
// datagram it receives is written verbatim to the child's stdin, and every
// line the child prints is sent as a datagram to 127.0.0.1:<connect_port>.
// The client side binds <connect_port>, prints whatever arrives, and sends
// each chunk read from the operator's input to <process_port>.
//
// There is no handshake, framing or retransmission. A datagram carries at
// most MaxDatagramSize bytes and multi-datagram writes may be reordered.
// Because the ports belong to the spec rather than the process instance, a
// connected client keeps working across restarts without reconnecting.
package attach

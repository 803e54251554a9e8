package port

import "errors"

// ErrNoSuchEndpoint is raised synchronously by an operation naming an
// endpoint absent from the Schema Registry (§4.6.2 step 1 and siblings).
var ErrNoSuchEndpoint = errors.New("port: no such endpoint")

// ErrWrongEndpointKind is raised when an operation is invoked against
// an endpoint registered under a different kind (e.g. callRpc against
// a channel endpoint).
var ErrWrongEndpointKind = errors.New("port: endpoint registered under a different kind")

// Package api exposes the lifecycle controller over JSON-RPC 2.0.
package api

import (
	"net/http"

	"github.com/ava-labs/avalanchego/utils/json"
	"github.com/gorilla/rpc/v2"
)

const (
	// Name is the service prefix of every method, as in "curve.buy".
	Name = "curve"
	// JSONRPCEndpoint is the path the handler is mounted on.
	JSONRPCEndpoint = "/rpc"
)

// NewJSONRPCHandler registers service under name. Method names are matched
// with their first letter upper-cased, so "curve.buy" reaches Buy.
func NewJSONRPCHandler(name string, service interface{}) (http.Handler, error) {
	server := rpc.NewServer()
	codec := json.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := server.RegisterService(service, name); err != nil {
		return nil, err
	}
	return server, nil
}

// NewMux mounts the controller service on JSONRPCEndpoint.
func NewMux(service *JSONRPCServer) (*http.ServeMux, error) {
	h, err := NewJSONRPCHandler(Name, service)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(JSONRPCEndpoint, h)
	return mux, nil
}

package modules

import (
	gotritonclient "github.com/okieraised/go-triton-client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// NewTritonConnection dials the inference server. Transport is plaintext
// since the server sits inside the cluster; keepalives keep the shared
// connection open across idle stretches between check-ins.
func NewTritonConnection(serverURL string) (*gotritonclient.TritonGRPCClient, error) {
	return gotritonclient.NewTritonGRPCClient(
		serverURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{PermitWithoutStream: true}),
	)
}

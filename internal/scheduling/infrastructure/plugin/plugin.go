// Package plugin hosts the Utility Provider and Weight Provider
// collaborators (spec §6) as out-of-process plugins over net/rpc, using
// hashicorp/go-plugin the way the teacher's engine/registry/loader.go
// hosts its scoring engines — except over net/rpc rather than gRPC, since
// this module has no protoc-generated stubs to dispense with. Keeping ML
// inference behind this narrow RPC boundary means the core process never
// imports an ML framework; the built-in heuristic fallback implements the
// same ports.UtilityProvider/ports.WeightProvider interfaces in-process.
package plugin

import (
	"context"
	"net/rpc"
	"os/exec"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	hcplugin "github.com/hashicorp/go-plugin"

	"github.com/flowforge/scheduler/internal/scheduling/application/ports"
	"github.com/flowforge/scheduler/internal/scheduling/domain"
)

// Handshake is shared between host and plugin so a mismatched binary
// fails fast instead of hanging on the RPC handshake.
var Handshake = hcplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SCHEDULER_PLUGIN",
	MagicCookieValue: "utility_weight_v1",
}

// UtilityScoreArgs is the RPC argument for ScoreUtility.
type UtilityScoreArgs struct {
	Task    domain.Task
	Slot    domain.TimeSlot
	CtxInfo domain.SlotContext
}

// UtilityProviderRPC is the plugin package's net/rpc surface; PluginMap
// dispenses it as "utility_provider".
type UtilityProviderRPC interface {
	ScoreUtility(args UtilityScoreArgs) (float64, error)
}

// WeightProviderRPC is the plugin package's net/rpc surface for penalty
// weight overrides; PluginMap dispenses it as "weight_provider".
type WeightProviderRPC interface {
	PenaltyWeights(userID uuid.UUID) (domain.PenaltyMultipliers, error)
}

// utilityProviderRPCClient adapts the net/rpc client to
// ports.UtilityProvider, run in the host process.
type utilityProviderRPCClient struct{ client *rpc.Client }

func (c *utilityProviderRPCClient) ScoreUtility(ctx context.Context, task domain.Task, slot domain.TimeSlot, ctxInfo domain.SlotContext) (float64, error) {
	var resp float64
	err := c.client.Call("Plugin.ScoreUtility", UtilityScoreArgs{Task: task, Slot: slot, CtxInfo: ctxInfo}, &resp)
	return resp, err
}

// utilityProviderRPCServer runs inside the plugin process and dispatches
// to the real implementation.
type utilityProviderRPCServer struct{ impl UtilityProviderRPC }

func (s *utilityProviderRPCServer) ScoreUtility(args UtilityScoreArgs, resp *float64) error {
	v, err := s.impl.ScoreUtility(args)
	*resp = v
	return err
}

// UtilityProviderPlugin is the hcplugin.Plugin implementation dispensed
// under the "utility_provider" key.
type UtilityProviderPlugin struct {
	Impl UtilityProviderRPC
}

func (p *UtilityProviderPlugin) Server(*hcplugin.MuxBroker) (interface{}, error) {
	return &utilityProviderRPCServer{impl: p.Impl}, nil
}

func (p *UtilityProviderPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &utilityProviderRPCClient{client: c}, nil
}

type weightProviderRPCClient struct{ client *rpc.Client }

func (c *weightProviderRPCClient) PenaltyWeights(ctx context.Context, userID uuid.UUID) (domain.PenaltyMultipliers, error) {
	var resp domain.PenaltyMultipliers
	err := c.client.Call("Plugin.PenaltyWeights", userID, &resp)
	return resp, err
}

type weightProviderRPCServer struct{ impl WeightProviderRPC }

func (s *weightProviderRPCServer) PenaltyWeights(userID uuid.UUID, resp *domain.PenaltyMultipliers) error {
	v, err := s.impl.PenaltyWeights(userID)
	*resp = v
	return err
}

// WeightProviderPlugin is the hcplugin.Plugin implementation dispensed
// under the "weight_provider" key.
type WeightProviderPlugin struct {
	Impl WeightProviderRPC
}

func (p *WeightProviderPlugin) Server(*hcplugin.MuxBroker) (interface{}, error) {
	return &weightProviderRPCServer{impl: p.Impl}, nil
}

func (p *WeightProviderPlugin) Client(b *hcplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &weightProviderRPCClient{client: c}, nil
}

// PluginMap is the map hcplugin.ClientConfig and hcplugin.Serve both use
// to agree on dispensed plugin names.
var PluginMap = map[string]hcplugin.Plugin{
	"utility_provider": &UtilityProviderPlugin{},
	"weight_provider":  &WeightProviderPlugin{},
}

// Host launches a plugin binary and dispenses both collaborators from it.
// Either return value may be nil if the binary doesn't implement that
// plugin name; callers fall back to the built-in heuristic in that case.
type Host struct {
	client *hcplugin.Client
}

// Launch execs binaryPath as a plugin subprocess and completes the
// handshake. Callers must call Close when done to terminate the process.
func Launch(binaryPath string, logger hclog.Logger) (*Host, error) {
	client := hcplugin.NewClient(&hcplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap,
		Cmd:             exec.Command(binaryPath),
		Logger:          logger,
		AllowedProtocols: []hcplugin.Protocol{
			hcplugin.ProtocolNetRPC,
		},
	})
	if _, err := client.Client(); err != nil {
		client.Kill()
		return nil, err
	}
	return &Host{client: client}, nil
}

// UtilityProvider dispenses the "utility_provider" plugin as a
// ports.UtilityProvider, or nil if the plugin binary doesn't serve one.
func (h *Host) UtilityProvider() (ports.UtilityProvider, error) {
	rpcClient, err := h.client.Client()
	if err != nil {
		return nil, err
	}
	raw, err := rpcClient.Dispense("utility_provider")
	if err != nil {
		return nil, err
	}
	impl, _ := raw.(*utilityProviderRPCClient)
	if impl == nil {
		return nil, nil
	}
	return impl, nil
}

// WeightProvider dispenses the "weight_provider" plugin as a
// ports.WeightProvider, or nil if the plugin binary doesn't serve one.
func (h *Host) WeightProvider() (ports.WeightProvider, error) {
	rpcClient, err := h.client.Client()
	if err != nil {
		return nil, err
	}
	raw, err := rpcClient.Dispense("weight_provider")
	if err != nil {
		return nil, err
	}
	impl, _ := raw.(*weightProviderRPCClient)
	if impl == nil {
		return nil, nil
	}
	return impl, nil
}

// Close terminates the plugin subprocess.
func (h *Host) Close() {
	h.client.Kill()
}

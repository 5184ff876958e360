package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
	"chat-sync/internal/registry"
)

type PointerStoreMock struct {
	mock.Mock
}

func (m *PointerStoreMock) Upsert(ctx context.Context, a, b string, messageID, created int64) (int, error) {
	args := m.Called(ctx, a, b, messageID, created)
	return args.Int(0), args.Error(1)
}

func (m *PointerStoreMock) Pointers(ctx context.Context, identity string) (map[string]int64, error) {
	args := m.Called(ctx, identity)
	var pointers map[string]int64
	if val := args.Get(0); val != nil {
		pointers = val.(map[string]int64)
	}
	return pointers, args.Error(1)
}

type ConnectionLookupMock struct {
	mock.Mock
}

func (m *ConnectionLookupMock) LookupConnection(ctx context.Context, identity string) (string, bool, error) {
	args := m.Called(ctx, identity)
	return args.String(0), args.Bool(1), args.Error(2)
}

// RegistryMock covers the registry operations used by the websocket and HTTP layers.
type RegistryMock struct {
	mock.Mock
}

func (m *RegistryMock) Register(ctx context.Context, authCode, handle string) (registry.Registration, error) {
	args := m.Called(ctx, authCode, handle)
	var reg registry.Registration
	if val := args.Get(0); val != nil {
		reg = val.(registry.Registration)
	}
	return reg, args.Error(1)
}

func (m *RegistryMock) Deregister(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

func (m *RegistryMock) Refresh(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}

func (m *RegistryMock) ResolveHandle(ctx context.Context, handle string) (string, error) {
	args := m.Called(ctx, handle)
	return args.String(0), args.Error(1)
}

type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) Push(handle string, frame models.OutboundFrame) bool {
	args := m.Called(handle, frame)
	return args.Bool(0)
}

func (m *PusherMock) Broadcast(groupID int64, frame models.OutboundFrame) int {
	args := m.Called(groupID, frame)
	return args.Int(0)
}

type MediaResolverMock struct {
	mock.Mock
}

func (m *MediaResolverMock) Resolve(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

type ChannelRevokerMock struct {
	mock.Mock
}

func (m *ChannelRevokerMock) RevokeMember(groupID int64, identity string) int {
	args := m.Called(groupID, identity)
	return args.Int(0)
}

// NodeHubMock stands in for the connections held by one node.
type NodeHubMock struct {
	PusherMock
}

func (m *NodeHubMock) HasClient(handle string) bool {
	args := m.Called(handle)
	return args.Bool(0)
}

func (m *NodeHubMock) Kick(handle string) bool {
	args := m.Called(handle)
	return args.Bool(0)
}

func (m *NodeHubMock) RevokeMember(groupID int64, identity string) int {
	args := m.Called(groupID, identity)
	return args.Int(0)
}

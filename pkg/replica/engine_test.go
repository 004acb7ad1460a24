package replica

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/reptree/pkg/storage"
	"github.com/cuemby/reptree/pkg/types"
)

func newTestEngines(t *testing.T, peerID string) map[string]*Engine {
	t.Helper()

	mem, err := NewEngine(Config{PeerID: types.PeerId(peerID), Storage: storage.Config{Backend: storage.BackendMemory}})
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	bolt, err := NewEngine(Config{
		PeerID:  types.PeerId(peerID),
		Storage: storage.Config{Backend: storage.BackendLocalPath, LocalPath: t.TempDir()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]*Engine{"memory": mem, "bolt": bolt}
}

func ptr(s types.VertexId) *types.VertexId { return &s }

// S1: create-and-read.
func TestCreateAndRead(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
				ID: types.NewOpId("p1", 1), TargetID: "root", ParentID: nil, Timestamp: 1000,
			}))
			require.NoError(t, err)

			_, err = e.ApplyOp(types.SetPropertyOperation(types.SetPropertyOp{
				ID: types.NewOpId("p1", 2), TargetID: "root", Key: "name", Value: types.StringValue("Root"),
			}))
			require.NoError(t, err)

			v, err := e.GetVertex("root")
			require.NoError(t, err)
			require.NotNil(t, v)
			assert.Nil(t, v.ParentID)
			assert.Equal(t, int64(0), v.Idx)
			assert.Equal(t, types.StringValue("Root"), v.Properties["name"])
		})
	}
}

// S2: child indexing.
func TestChildIndexing(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			apply := func(counter uint64, target string, parent *types.VertexId, ts uint64) {
				_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
					ID: types.NewOpId("p1", counter), TargetID: target, ParentID: parent, Timestamp: ts,
				}))
				require.NoError(t, err)
			}

			apply(1, "root", nil, 1000)
			apply(3, "c1", ptr("root"), 2000)
			apply(4, "c2", ptr("root"), 2001)

			children, err := e.GetChildren("root")
			require.NoError(t, err)
			require.Len(t, children, 2)
			assert.Equal(t, "c1", children[0].ID)
			assert.Equal(t, int64(1), children[0].Idx)
			assert.Equal(t, "c2", children[1].ID)
			assert.Equal(t, int64(2), children[1].Idx)
		})
	}
}

// S3: move reparents.
func TestMoveReparents(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			apply := func(counter uint64, target string, parent *types.VertexId, ts uint64) {
				_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
					ID: types.NewOpId("p1", counter), TargetID: target, ParentID: parent, Timestamp: ts,
				}))
				require.NoError(t, err)
			}

			apply(1, "root", nil, 1000)
			apply(3, "c1", ptr("root"), 2000)
			apply(4, "c2", ptr("root"), 2001)
			apply(5, "c1", ptr("root"), 2002)

			c1, err := e.GetVertex("c1")
			require.NoError(t, err)
			require.NotNil(t, c1.ParentID)
			assert.Equal(t, "root", *c1.ParentID)
			assert.Equal(t, int64(3), c1.Idx)

			children, err := e.GetChildren("root")
			require.NoError(t, err)
			require.Len(t, children, 2)
			assert.Equal(t, "c2", children[0].ID)
			assert.Equal(t, "c1", children[1].ID)
		})
	}
}

// S4: missing parent.
func TestMoveMissingParent(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
				ID: types.NewOpId("p1", 1), TargetID: "x", ParentID: ptr("nope"), Timestamp: 1,
			}))
			require.Error(t, err)
			assert.True(t, types.IsVertexNotFound(err))

			sv := e.GetStateVector()
			assert.Empty(t, sv)

			v, err := e.GetVertex("x")
			require.NoError(t, err)
			assert.Nil(t, v)
		})
	}
}

// S6: persistence across reopen (path-backed only; memory has no
// cross-instance durability by design).
func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	e1, err := NewEngine(Config{PeerID: "p1", Storage: storage.Config{Backend: storage.BackendLocalPath, LocalPath: dir}})
	require.NoError(t, err)

	_, err = e1.ApplyOp(types.MoveOperation(types.MoveOp{
		ID: types.NewOpId("p1", 1), TargetID: "root", ParentID: nil, Timestamp: 1000,
	}))
	require.NoError(t, err)
	_, err = e1.ApplyOp(types.SetPropertyOperation(types.SetPropertyOp{
		ID: types.NewOpId("p1", 2), TargetID: "root", Key: "name", Value: types.StringValue("Root"),
	}))
	require.NoError(t, err)
	require.NoError(t, e1.Close())

	e2, err := NewEngine(Config{PeerID: "p2", Storage: storage.Config{Backend: storage.BackendLocalPath, LocalPath: dir}})
	require.NoError(t, err)
	defer e2.Close()

	v, err := e2.GetVertex("root")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, types.StringValue("Root"), v.Properties["name"])
}

func TestApplyOpIdempotent(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			op := types.MoveOperation(types.MoveOp{
				ID: types.NewOpId("p1", 1), TargetID: "root", ParentID: nil, Timestamp: 1000,
			})

			_, err := e.ApplyOp(op)
			require.NoError(t, err)
			clockAfterFirst := e.LamportClock()

			_, err = e.ApplyOp(op)
			require.NoError(t, err)
			assert.Equal(t, clockAfterFirst, e.LamportClock(), "re-applying a known OpId must not advance the clock")

			seq, err := e.storage.MoveLog.LatestSeq()
			require.NoError(t, err)
			assert.Equal(t, uint64(1), seq, "re-applying a known OpId must not append a second log record")
		})
	}
}

func TestSetPropertyTransientIsNotPersisted(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
				ID: types.NewOpId("p1", 1), TargetID: "root", ParentID: nil, Timestamp: 1000,
			}))
			require.NoError(t, err)

			sub := e.Subscribe()
			defer e.broker.Unsubscribe(sub)

			_, err = e.ApplyOp(types.SetPropertyOperation(types.SetPropertyOp{
				ID: types.NewOpId("p1", 2), TargetID: "root", Key: "cursor", Value: types.IntegerValue(5), Transient: true,
			}))
			require.NoError(t, err)

			v, err := e.GetVertex("root")
			require.NoError(t, err)
			_, hasKey := v.Properties["cursor"]
			assert.False(t, hasKey)

			seq, err := e.storage.PropLog.LatestSeq()
			require.NoError(t, err)
			assert.Equal(t, uint64(0), seq)

			select {
			case evt := <-sub:
				assert.Equal(t, "cursor", evt.Key)
			case <-time.After(time.Second):
				t.Fatal("expected a transient property event to be published")
			}
		})
	}
}

func TestModifyPropertyProjectsToOpaqueBlob(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
				ID: types.NewOpId("p1", 1), TargetID: "root", ParentID: nil, Timestamp: 1000,
			}))
			require.NoError(t, err)

			_, err = e.ApplyOp(types.ModifyPropertyOperation(types.ModifyPropertyOp{
				ID: types.NewOpId("p1", 2), TargetID: "root", Key: "doc", Update: []byte{0x01, 0x02},
			}))
			require.NoError(t, err)

			v, err := e.GetVertex("root")
			require.NoError(t, err)
			assert.Equal(t, types.OpaqueValue([]byte{0x01, 0x02}), v.Properties["doc"])
		})
	}
}

// S5: state-vector diff.
func TestGetMissingOpsComputesDiff(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			apply := func(counter uint64, target string) {
				_, err := e.ApplyOp(types.MoveOperation(types.MoveOp{
					ID: types.NewOpId("p1", counter), TargetID: target, ParentID: nil, Timestamp: counter,
				}))
				require.NoError(t, err)
			}
			apply(1, "a")
			apply(2, "b")
			apply(3, "c")
			apply(5, "d") // counter 4 intentionally skipped

			theirState := map[types.PeerId][]types.Range{
				"p1": {{PeerID: "p1", Start: 1, End: 2}},
			}

			missing, err := e.GetMissingOps(theirState)
			require.NoError(t, err)
			require.Len(t, missing, 2)
			assert.Equal(t, uint64(3), missing[0].OpId().Counter)
			assert.Equal(t, uint64(5), missing[1].OpId().Counter)
		})
	}
}

func TestCreateSetMoveVertexHelpers(t *testing.T) {
	for name, e := range newTestEngines(t, "p1") {
		t.Run(name, func(t *testing.T) {
			root, err := e.CreateVertex(nil)
			require.NoError(t, err)

			child, err := e.CreateVertex(&root)
			require.NoError(t, err)

			_, err = e.SetProperty(child, "name", types.StringValue("child"))
			require.NoError(t, err)

			v, err := e.GetVertex(child)
			require.NoError(t, err)
			assert.Equal(t, types.StringValue("child"), v.Properties["name"])

			_, err = e.MoveVertex(child, nil)
			require.NoError(t, err)

			v, err = e.GetVertex(child)
			require.NoError(t, err)
			assert.Nil(t, v.ParentID)
		})
	}
}

func TestHealthProbeIDStartsAndStopsCollector(t *testing.T) {
	e, err := NewEngine(Config{
		PeerID:        "p1",
		Storage:       storage.Config{Backend: storage.BackendMemory},
		HealthProbeID: "root",
	})
	require.NoError(t, err)
	require.NotNil(t, e.collector)

	require.NoError(t, e.Close())
}

package grpcserver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/events"
	"jobmate/matching-service/internal/grpcserver"
	"jobmate/matching-service/internal/job"
	"jobmate/matching-service/internal/match"
	"jobmate/matching-service/internal/memstore"
)

var poster = job.Actor{UserID: "emp-1", InstitutionID: "inst-1"}

type harness struct {
	conn  *grpc.ClientConn
	jobID string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zap.NewNop()
	gpa := 3.5
	jobs := memstore.NewJobs()
	cands := memstore.NewCandidates(candidate.Profile{
		UserID: "u-1", GPA: &gpa, Skills: []string{"Go"}, OpenToAll: true, Active: true,
	})
	matches := memstore.NewMatches()
	counts := match.NewMemoryCountCache()
	authz := job.OwnerAuthorizer{}
	pub := &events.Recorder{}

	orch := match.NewOrchestrator(jobs, cands, matches, pub, counts, authz, log)
	reg := job.NewRegistry(jobs, authz, match.NewSyncDispatcher(orch, log), pub, log)
	query := match.NewQueryService(jobs, cands, matches, counts, authz, 50, log)

	j, err := reg.CreateNonGroupJob(context.Background(), poster, job.Draft{
		Title:            "Go intern",
		InstitutionID:    "inst-1",
		JobPostStartDate: time.Now().UTC(),
		Requirements:     job.Requirements{Skills: []string{"go"}},
	})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	grpcserver.Register(gs, grpcserver.NewServer(orch, query))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &harness{conn: conn, jobID: j.ID}
}

func (h *harness) call(ctx context.Context, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := h.conn.Invoke(ctx, "/"+grpcserver.ServiceName+"/"+method, in, out)
	return out, err
}

func asUser(id string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-user-id", id)
}

// ── Health ──

func TestHealthServing(t *testing.T) {
	h := newHarness(t)
	resp, err := healthpb.NewHealthClient(h.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: grpcserver.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

// ── RunForJob ──

func TestRunForJob(t *testing.T) {
	h := newHarness(t)
	ctx := asUser("emp-1")

	out, err := h.call(ctx, "RunForJob", wrapperspb.String(h.jobID))
	require.NoError(t, err)
	assert.Equal(t, h.jobID, out.GetFields()["jobId"].GetStringValue())
	assert.Equal(t, float64(1), out.GetFields()["evaluated"].GetNumberValue())

	_, err = h.call(ctx, "RunForJob", wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.call(ctx, "RunForJob", wrapperspb.String("missing"))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestRunForJob_RequiresOwner(t *testing.T) {
	h := newHarness(t)

	_, err := h.call(context.Background(), "RunForJob", wrapperspb.String(h.jobID))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.call(asUser("someone"), "RunForJob", wrapperspb.String(h.jobID))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

// ── RunForCandidate ──

func TestRunForCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]any{"userId": "u-1"})
	require.NoError(t, err)
	out, err := h.call(ctx, "RunForCandidate", req)
	require.NoError(t, err)
	assert.Equal(t, "u-1", out.GetFields()["userId"].GetStringValue())

	_, err = h.call(ctx, "RunForCandidate", &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req, err = structpb.NewStruct(map[string]any{"userId": "ghost"})
	require.NoError(t, err)
	_, err = h.call(ctx, "RunForCandidate", req)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

// ── QualifiedCandidates ──

func TestQualifiedCandidates(t *testing.T) {
	h := newHarness(t)

	req, err := structpb.NewStruct(map[string]any{"jobId": h.jobID, "size": 5})
	require.NoError(t, err)

	out, err := h.call(asUser("emp-1"), "QualifiedCandidates", req)
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.GetFields()["totalElements"].GetNumberValue())
	assert.Equal(t, float64(5), out.GetFields()["size"].GetNumberValue())
	content := out.GetFields()["content"].GetListValue().GetValues()
	require.Len(t, content, 1)
	assert.Equal(t, "u-1", content[0].GetStructValue().GetFields()["userId"].GetStringValue())

	_, err = h.call(context.Background(), "QualifiedCandidates", req)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = h.call(asUser("someone"), "QualifiedCandidates", req)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	bad, err := structpb.NewStruct(map[string]any{"jobId": h.jobID, "statuses": []any{"bogus"}})
	require.NoError(t, err)
	_, err = h.call(asUser("emp-1"), "QualifiedCandidates", bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	far, err := structpb.NewStruct(map[string]any{"jobId": h.jobID, "page": 1e300, "size": 3})
	require.NoError(t, err)
	out, err = h.call(asUser("emp-1"), "QualifiedCandidates", far)
	require.NoError(t, err)
	assert.Empty(t, out.GetFields()["content"].GetListValue().GetValues())
	assert.Equal(t, float64(1), out.GetFields()["totalElements"].GetNumberValue())

	filtered, err := structpb.NewStruct(map[string]any{"jobId": h.jobID, "gpa": 3.9})
	require.NoError(t, err)
	out, err = h.call(asUser("emp-1"), "QualifiedCandidates", filtered)
	require.NoError(t, err)
	assert.Equal(t, float64(0), out.GetFields()["totalElements"].GetNumberValue())
}

// ── CountForCandidate ──

func TestCountForCandidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.call(ctx, "CountForCandidate", wrapperspb.String("u-1"))
	require.NoError(t, err)
	assert.Equal(t, float64(1), out.GetFields()["matched"].GetNumberValue())

	_, err = h.call(ctx, "CountForCandidate", wrapperspb.String("ghost"))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

// Package grpcserver implements the MatchService gRPC server.
//
// It delegates all business logic to the match orchestrator and query
// service and handles only the gRPC transport concerns: metadata
// extraction, error mapping, and conversion to protobuf Struct payloads.
//
// Job-scoped calls (RunForJob, QualifiedCandidates) require the caller in
// x-user-id metadata and check job ownership. Candidate-scoped calls
// (RunForCandidate, CountForCandidate) are system triggers fired by the
// profile services, as their REST counterparts are, and carry no identity.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/job"
	"jobmate/matching-service/internal/match"
)

// Server implements MatchServiceServer.
type Server struct {
	orch  *match.Orchestrator
	query *match.QueryService
}

var _ MatchServiceServer = (*Server)(nil)

// NewServer constructs a gRPC Server backed by the orchestrator and query service.
func NewServer(orch *match.Orchestrator, query *match.QueryService) *Server {
	return &Server{orch: orch, query: query}
}

// Register mounts MatchService and the standard health service on gs.
func Register(gs *grpc.Server, srv *Server) *health.Server {
	gs.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// ─── RPC implementations ──────────────────────────────────────────────────────

// RunForJob runs job-centric matching inline for the job's owner and
// returns the run summary.
func (s *Server) RunForJob(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "job id is required")
	}
	sum, err := s.orch.RunForJobAs(ctx, actor, req.GetValue())
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(sum)
}

// RunForCandidate runs candidate-centric matching inline.
// Request fields: userId (string), groupsOnly (bool).
func (s *Server) RunForCandidate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	userID := f["userId"].GetStringValue()
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	sum, err := s.orch.RunForCandidate(ctx, userID, match.CandidateRunOptions{
		GroupsOnly: f["groupsOnly"].GetBoolValue(),
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(sum)
}

// QualifiedCandidates returns one page of a job's qualified candidates.
// Request fields: jobId, page, size, gpa, skills (list), statuses (list).
func (s *Server) QualifiedCandidates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}

	f := req.GetFields()
	filters := match.Filters{Skills: stringList(f["skills"])}
	if v, ok := f["gpa"]; ok {
		if _, isNum := v.GetKind().(*structpb.Value_NumberValue); isNum {
			g := v.GetNumberValue()
			filters.MinGPA = &g
		}
	}
	for _, raw := range stringList(f["statuses"]) {
		st, err := match.ParseStatus(raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		filters.Statuses = append(filters.Statuses, st)
	}
	pr := match.PageRequest{
		Page: intField(f["page"]),
		Size: intField(f["size"]),
	}

	page, err := s.query.QualifiedCandidates(ctx, actor, f["jobId"].GetStringValue(), filters, pr)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(page)
}

// CountForCandidate returns the candidate's match counts by status.
func (s *Server) CountForCandidate(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	counts, err := s.query.CountForCandidate(ctx, req.GetValue())
	if err != nil {
		return nil, toGRPCError(err)
	}
	return toStruct(counts)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// userIDFromCtx extracts the x-user-id value forwarded by the Gateway
// via gRPC metadata.
func userIDFromCtx(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("x-user-id")
	if len(vals) == 0 || vals[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return vals[0], nil
}

func actorFromCtx(ctx context.Context) (job.Actor, error) {
	userID, err := userIDFromCtx(ctx)
	if err != nil {
		return job.Actor{}, err
	}
	return job.Actor{UserID: userID, InstitutionID: metadataValue(ctx, "x-institution-id")}, nil
}

func metadataValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Msg)
	case errors.Is(err, apperr.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, apperr.ErrAccessDenied):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, apperr.ErrRunInProgress):
		return status.Error(codes.Aborted, err.Error())
	case apperr.IsComputation(err):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return st, nil
}

// intField reads a Struct number, clamped to the int32 range so that
// out-of-range floats never reach the int conversion.
func intField(v *structpb.Value) int {
	n := v.GetNumberValue()
	switch {
	case math.IsNaN(n):
		return 0
	case n > math.MaxInt32:
		return math.MaxInt32
	case n < math.MinInt32:
		return math.MinInt32
	}
	return int(n)
}

func stringList(v *structpb.Value) []string {
	var out []string
	for _, item := range v.GetListValue().GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

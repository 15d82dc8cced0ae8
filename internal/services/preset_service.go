package services

import (
	"context"
	"net/http"

	"github.com/bufbuild/connect-go"
	"github.com/carefollow/callboard/internal/auth"
	"github.com/carefollow/callboard/internal/config"
	"github.com/carefollow/callboard/internal/rpc"
)

const PresetServiceName = "callboard.v1.PresetService"

type PresetService struct {
	*config.Providers
}

func NewPresetService(p *config.Providers) *PresetService {
	return &PresetService{
		Providers: p,
	}
}

func (svc *PresetService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	s := rpc.NewService(PresetServiceName)

	rpc.Unary(s, "ListPresets", svc.ListPresets, opts...)
	rpc.Unary(s, "SavePreset", svc.SavePreset, opts...)
	rpc.Unary(s, "DeletePreset", svc.DeletePreset, opts...)
	rpc.Unary(s, "ListTreePresets", svc.ListTreePresets, opts...)
	rpc.Unary(s, "SaveTreePreset", svc.SaveTreePreset, opts...)
	rpc.Unary(s, "DeleteTreePreset", svc.DeleteTreePreset, opts...)
	rpc.Unary(s, "GenerateObjectives", svc.GenerateObjectives, opts...)

	return s.Handler()
}

func (svc *PresetService) ListPresets(ctx context.Context, req *connect.Request[OrganisationRef]) (*connect.Response[ListPresetsResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	presets, err := svc.Presets.ListPresets(ctx, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListPresetsResponse{Presets: presets}), nil
}

func (svc *PresetService) SavePreset(ctx context.Context, req *connect.Request[SavePresetRequest]) (*connect.Response[SavePresetResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	preset := req.Msg.Preset
	preset.OrganisationID = orgID
	preset.Default = false

	if user, ok := auth.From(ctx); ok {
		preset.UpdatedBy = user.ID
	}

	if err := svc.Presets.SavePreset(ctx, &preset); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&SavePresetResponse{Preset: preset}), nil
}

func (svc *PresetService) DeletePreset(ctx context.Context, req *connect.Request[DeleteRequest]) (*connect.Response[Empty], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	if err := svc.Presets.DeletePreset(ctx, orgID, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&Empty{}), nil
}

func (svc *PresetService) ListTreePresets(ctx context.Context, req *connect.Request[OrganisationRef]) (*connect.Response[ListTreePresetsResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	presets, err := svc.Presets.ListTreePresets(ctx, orgID)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&ListTreePresetsResponse{Presets: presets}), nil
}

func (svc *PresetService) SaveTreePreset(ctx context.Context, req *connect.Request[SaveTreePresetRequest]) (*connect.Response[SaveTreePresetResponse], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	preset := req.Msg.Preset
	preset.OrganisationID = orgID

	if err := preset.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if user, ok := auth.From(ctx); ok {
		preset.UpdatedBy = user.ID
	}

	if err := svc.Presets.SaveTreePreset(ctx, &preset); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&SaveTreePresetResponse{Preset: preset}), nil
}

func (svc *PresetService) DeleteTreePreset(ctx context.Context, req *connect.Request[DeleteRequest]) (*connect.Response[Empty], error) {
	orgID, err := auth.Organisation(ctx, req.Msg.OrganisationID)
	if err != nil {
		return nil, err
	}

	if err := svc.Presets.DeleteTreePreset(ctx, orgID, req.Msg.ID); err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&Empty{}), nil
}

func (svc *PresetService) GenerateObjectives(ctx context.Context, req *connect.Request[GenerateObjectivesRequest]) (*connect.Response[GenerateObjectivesResponse], error) {
	if _, err := auth.Organisation(ctx, req.Msg.OrganisationID); err != nil {
		return nil, err
	}

	objectives, err := svc.Backend.GenerateObjectives(ctx, req.Msg.Instructions)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&GenerateObjectivesResponse{Objectives: objectives}), nil
}

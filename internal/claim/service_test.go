package claim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/coverage"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/reconcile"
	wentity "github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
)

type WorkflowSuite struct {
	suite.Suite
	*require.Assertions

	ctx        context.Context
	now        time.Time
	claims     *memClaims
	warranties *memWarranties
	sink       *recordingSink
	svc        *Service
}

func Test_WorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (ws *WorkflowSuite) SetupTest() {
	ws.Assertions = require.New(ws.T())
	ws.ctx = context.Background()
	ws.now = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	ws.claims = newMemClaims()
	ws.warranties = newMemWarranties(ws.claims,
		ws.warranty("w-approved", "1234567", wentity.ApprovalApproved, ws.now.AddDate(1, 0, 0)),
		ws.warranty("w-pending", "2345678", wentity.ApprovalPending, ws.now.AddDate(1, 0, 0)),
		ws.warranty("w-expired", "3456789", wentity.ApprovalApproved, ws.now.AddDate(0, 0, -1)),
	)
	ws.sink = &recordingSink{}
	rec := reconcile.NewReconciler(ws.warranties, nil)
	ws.svc = NewService(ws.claims, ws.warranties, memShops{"shop-1": true}, rec, ws.sink, nil, Options{})
	ws.svc.now = func() time.Time { return ws.now }
}

func (ws *WorkflowSuite) warranty(id, policy string, st wentity.ApprovalStatus, expires time.Time) *wentity.Warranty {
	return &wentity.Warranty{
		ID:             id,
		PolicyNumber:   policy,
		ShopID:         "shop-1",
		Device:         wentity.Device{Brand: "Acme", Model: "X1"},
		DevicePrice:    decimal.NewFromInt(10000),
		PaymentMethod:  coverage.PaymentInstallment,
		Schedule:       wentity.Schedule{{No: 1, Status: wentity.InstallmentPaid}, {No: 2, Status: wentity.InstallmentPaid}, {No: 3}},
		ApprovalStatus: st,
		ClaimStatus:    wentity.ClaimNormal,
		StartsAt:       ws.now.AddDate(-1, 0, 0),
		ExpiresAt:      expires,
	}
}

func (ws *WorkflowSuite) intake(warrantyID string) *entity.Claim {
	c, err := ws.svc.Intake(ws.ctx, IntakeInput{WarrantyID: warrantyID, Symptom: "screen flicker", Actor: "staff-1"})
	ws.NoError(err)
	return c
}

func (ws *WorkflowSuite) Test_Intake() {
	c := ws.intake("w-approved")

	ws.Equal(entity.StatusAwaitingIntake, c.Status)
	ws.Regexp(`^CLM[0-9]{7}$`, c.ClaimID)
	ws.True(c.TotalCost.IsZero())
	ws.Empty(c.Updates)
	ws.Equal("shop-1", c.ShopID)
	ws.Equal(wentity.ClaimPending, ws.warranties.get("w-approved").ClaimStatus)
	ws.Equal([]string{notify.EventClaimUpdated}, ws.sink.names())
	ws.Equal(c.ClaimID, ws.sink.events[0].Payload["claimId"])
	ws.Equal(c.ID, ws.sink.events[0].Payload["id"])
	ws.Equal("w-approved", ws.sink.events[0].Payload["warrantyId"])
}

func (ws *WorkflowSuite) Test_IntakeByPolicyNumber() {
	c, err := ws.svc.Intake(ws.ctx, IntakeInput{PolicyNumber: "1234567", Symptom: "no power"})
	ws.NoError(err)
	ws.Equal("w-approved", c.WarrantyID)
}

func (ws *WorkflowSuite) Test_IntakeRejected() {
	tests := []struct {
		name     string
		input    IntakeInput
		wantKind apperr.Kind
		wantKey  apperr.Key
	}{
		{"pending approval", IntakeInput{WarrantyID: "w-pending", Symptom: "x"}, apperr.KindBusinessRule, apperr.ErrorNotApproved},
		{"expired", IntakeInput{WarrantyID: "w-expired", Symptom: "x"}, apperr.KindBusinessRule, apperr.ErrorExpired},
		{"unknown warranty", IntakeInput{WarrantyID: "nope", Symptom: "x"}, apperr.KindNotFound, apperr.ErrorNotFound},
		{"missing symptom", IntakeInput{WarrantyID: "w-approved"}, apperr.KindValidation, apperr.ErrorValidation},
		{"no warranty reference", IntakeInput{Symptom: "x"}, apperr.KindValidation, apperr.ErrorValidation},
		{
			"bad checklist status",
			IntakeInput{WarrantyID: "w-approved", Symptom: "x", Condition: entity.DeviceCondition{Screen: entity.ConditionItem{Status: "shattered"}}},
			apperr.KindValidation, apperr.ErrorValidation,
		},
	}
	for _, tt := range tests {
		ws.Run(tt.name, func() {
			_, err := ws.svc.Intake(ws.ctx, tt.input)
			ws.Error(err)
			ws.Equal(tt.wantKind, apperr.KindOf(err))
			ws.True(apperr.Is(err, tt.wantKey), "got %v", err)
		})
	}
	ws.Empty(ws.claims.byClaimID)
	ws.Equal(wentity.ClaimNormal, ws.warranties.get("w-pending").ClaimStatus)
}

func (ws *WorkflowSuite) Test_IntakeRetriesClaimIDCollisions() {
	ws.claims.collisions = 3
	c := ws.intake("w-approved")
	ws.NotEmpty(c.ClaimID)

	ws.claims.collisions = 100
	_, err := ws.svc.Intake(ws.ctx, IntakeInput{WarrantyID: "w-approved", Symptom: "x"})
	ws.True(apperr.Is(err, apperr.ErrorIDExhausted), "got %v", err)
}

func (ws *WorkflowSuite) Test_AddUpdate() {
	c := ws.intake("w-approved")

	c, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "diagnosed", Actor: "tech"})
	ws.NoError(err)
	c, err = ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{
		Description: "replaced screen",
		Cost:        decimal.NewFromInt(1200),
		Images:      []string{"evidence/1.jpg"},
	})
	ws.NoError(err)
	c, err = ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{
		Description: "battery",
		Cost:        decimal.RequireFromString("350.50"),
		Images:      []string{"evidence/2.jpg", "evidence/3.jpg"},
	})
	ws.NoError(err)

	ws.Len(c.Updates, 3)
	for i, u := range c.Updates {
		ws.Equal(i+2, u.Step)
	}
	ws.assertTotalMatchesUpdates(c)
	ws.True(c.TotalCost.Equal(decimal.RequireFromString("1550.50")))

	stored, err := ws.claims.GetByClaimID(ws.ctx, c.ClaimID)
	ws.NoError(err)
	ws.True(stored.TotalCost.Equal(c.TotalCost))
	ws.True(ws.warranties.get("w-approved").UsedCoverage.Decimal.Equal(c.TotalCost))
	ws.Len(ws.sink.names(), 4)
}

func (ws *WorkflowSuite) Test_AddUpdateRequiresEvidence() {
	c := ws.intake("w-approved")
	savesBefore := ws.claims.saves

	_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "parts", Cost: decimal.NewFromInt(5)})
	ws.True(apperr.Is(err, apperr.ErrorMissingEvidence), "got %v", err)
	ws.Equal(apperr.KindBusinessRule, apperr.KindOf(err))

	after, err := ws.claims.GetByClaimID(ws.ctx, c.ClaimID)
	ws.NoError(err)
	ws.Len(after.Updates, 0)
	ws.True(after.TotalCost.IsZero())
	ws.Equal(savesBefore, ws.claims.saves)
	ws.Len(ws.sink.names(), 1)
}

func (ws *WorkflowSuite) Test_AddUpdateRejectsNegativeCost() {
	c := ws.intake("w-approved")
	_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "refund", Cost: decimal.NewFromInt(-1), Images: []string{"a"}})
	ws.Equal(apperr.KindValidation, apperr.KindOf(err))
}

func (ws *WorkflowSuite) Test_AddUpdateUnknownClaim() {
	_, err := ws.svc.AddUpdate(ws.ctx, "CLM0000000", UpdateInput{Description: "x"})
	ws.Equal(apperr.KindNotFound, apperr.KindOf(err))
}

func (ws *WorkflowSuite) Test_ReconcileSumsAllClaimsOfWarranty() {
	costs := []int64{100, 200, 0}
	for _, cost := range costs {
		c := ws.intake("w-approved")
		in := UpdateInput{Description: "repair", Cost: decimal.NewFromInt(cost)}
		if cost > 0 {
			in.Images = []string{"e.jpg"}
		}
		_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, in)
		ws.NoError(err)
	}
	ws.True(ws.warranties.get("w-approved").UsedCoverage.Decimal.Equal(decimal.NewFromInt(300)))
}

func (ws *WorkflowSuite) Test_Complete() {
	c := ws.intake("w-approved")
	_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "fixed"})
	ws.NoError(err)

	done, err := ws.svc.Complete(ws.ctx, c.ClaimID, CompleteInput{Method: entity.ReturnPickup, ShopID: "shop-1", Note: "customer signed"})
	ws.NoError(err)

	ws.Equal(entity.StatusDeviceReceived, done.Status)
	ws.NotNil(done.PickupDate)
	ws.True(done.PickupDate.Equal(ws.now))
	ws.Len(done.Updates, 2)
	last := done.Updates[1]
	ws.Equal(3, last.Step)
	ws.True(last.Final)
	ws.Contains(last.Description, "customer signed")
	ws.Equal(entity.ReturnPickup, *done.ReturnMethod)
	ws.Equal("shop-1", *done.ReturnShopID)
	ws.Equal(wentity.ClaimNormal, ws.warranties.get("w-approved").ClaimStatus)

	_, err = ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "late"})
	ws.True(apperr.Is(err, apperr.ErrorClaimClosed))
	_, err = ws.svc.Complete(ws.ctx, c.ClaimID, CompleteInput{Method: entity.ReturnPickup, ShopID: "shop-1"})
	ws.True(apperr.Is(err, apperr.ErrorClaimClosed))
}

func (ws *WorkflowSuite) Test_CompleteKeepsMarkerWhileAnotherClaimIsOpen() {
	first := ws.intake("w-approved")
	second := ws.intake("w-approved")
	ws.Equal(wentity.ClaimPending, ws.warranties.get("w-approved").ClaimStatus)

	_, err := ws.svc.Complete(ws.ctx, first.ClaimID, CompleteInput{Method: entity.ReturnPickup, ShopID: "shop-1"})
	ws.NoError(err)
	stored, err := ws.claims.GetByClaimID(ws.ctx, second.ClaimID)
	ws.NoError(err)
	ws.Equal(entity.StatusAwaitingIntake, stored.Status)
	ws.Equal(wentity.ClaimPending, ws.warranties.get("w-approved").ClaimStatus)

	_, err = ws.svc.Complete(ws.ctx, second.ClaimID, CompleteInput{Method: entity.ReturnPickup, ShopID: "shop-1"})
	ws.NoError(err)
	ws.Equal(wentity.ClaimNormal, ws.warranties.get("w-approved").ClaimStatus)
}

func (ws *WorkflowSuite) Test_CompleteDelivery() {
	c := ws.intake("w-approved")
	done, err := ws.svc.Complete(ws.ctx, c.ClaimID, CompleteInput{
		Method:      entity.ReturnDelivery,
		AddressType: entity.AddressWork,
		Address:     "99 Rama IV Rd, Bangkok",
	})
	ws.NoError(err)
	ws.Equal(entity.AddressWork, *done.ReturnAddressType)
	ws.Nil(done.ReturnShopID)
}

func (ws *WorkflowSuite) Test_CompleteInvalidReturn() {
	c := ws.intake("w-approved")
	tests := []struct {
		name  string
		input CompleteInput
		kind  apperr.Kind
	}{
		{"pickup without shop", CompleteInput{Method: entity.ReturnPickup}, apperr.KindBusinessRule},
		{"pickup unknown shop", CompleteInput{Method: entity.ReturnPickup, ShopID: "shop-9"}, apperr.KindNotFound},
		{"delivery unknown address type", CompleteInput{Method: entity.ReturnDelivery, AddressType: "moon", Address: "x"}, apperr.KindBusinessRule},
		{"delivery without address", CompleteInput{Method: entity.ReturnDelivery, AddressType: entity.AddressMember}, apperr.KindBusinessRule},
		{"unknown method", CompleteInput{Method: "drone"}, apperr.KindValidation},
	}
	for _, tt := range tests {
		ws.Run(tt.name, func() {
			_, err := ws.svc.Complete(ws.ctx, c.ClaimID, tt.input)
			ws.Equal(tt.kind, apperr.KindOf(err), "got %v", err)
		})
	}
	stored, _ := ws.claims.GetByClaimID(ws.ctx, c.ClaimID)
	ws.Equal(entity.StatusAwaitingIntake, stored.Status)
}

func (ws *WorkflowSuite) Test_NotificationFailureDoesNotFailTransition() {
	ws.sink.err = errors.New("display offline")
	c := ws.intake("w-approved")
	_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "x"})
	ws.NoError(err)
}

func (ws *WorkflowSuite) Test_VersionConflictRetries() {
	c := ws.intake("w-approved")
	bumped := false
	ws.claims.beforeSave = func(cur *entity.Claim) {
		if !bumped {
			bumped = true
			cur.Version++
		}
	}
	got, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "x"})
	ws.NoError(err)
	ws.Len(got.Updates, 1)

	ws.claims.beforeSave = func(cur *entity.Claim) { cur.Version++ }
	_, err = ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "y"})
	ws.Equal(apperr.KindConflict, apperr.KindOf(err))
}

func (ws *WorkflowSuite) Test_ConcurrentUpdatesKeepTotal() {
	ws.svc.opts.WriteRetries = 100
	c := ws.intake("w-approved")

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(cost int64) {
			defer wg.Done()
			_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{
				Description: "part",
				Cost:        decimal.NewFromInt(cost),
				Images:      []string{"e.jpg"},
			})
			ws.Assert().NoError(err)
		}(int64(i))
	}
	wg.Wait()

	stored, err := ws.claims.GetByClaimID(ws.ctx, c.ClaimID)
	ws.NoError(err)
	ws.Len(stored.Updates, 20)
	ws.True(stored.TotalCost.Equal(decimal.NewFromInt(210)), stored.TotalCost.String())
	ws.assertTotalMatchesUpdates(stored)

	ws.svc.reconciler.ReconcileBestEffort(ws.ctx, "w-approved")
	ws.True(ws.warranties.get("w-approved").UsedCoverage.Decimal.Equal(decimal.NewFromInt(210)))
}

func (ws *WorkflowSuite) Test_Overdue() {
	stale := ws.intake("w-approved")
	fresh := ws.intake("w-approved")

	ws.svc.now = func() time.Time { return ws.now.AddDate(0, 0, 2) }
	_, err := ws.svc.AddUpdate(ws.ctx, fresh.ClaimID, UpdateInput{Description: "waiting for parts"})
	ws.NoError(err)

	ws.svc.now = func() time.Time { return ws.now.AddDate(0, 0, 6) }
	overdue, err := ws.svc.ListOverdue(ws.ctx)
	ws.NoError(err)
	ws.Len(overdue, 1)
	ws.Equal(stale.ClaimID, overdue[0].ClaimID)
	ws.True(overdue[0].IsOverdue)
	ws.Equal(6, overdue[0].DaysOverdue)

	v, err := ws.svc.Get(ws.ctx, fresh.ClaimID)
	ws.NoError(err)
	ws.False(v.IsOverdue)
}

func (ws *WorkflowSuite) Test_Track() {
	c := ws.intake("w-approved")
	ws.svc.now = func() time.Time { return ws.now.Add(time.Hour) }
	_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "first", Cost: decimal.NewFromInt(500), Images: []string{"a.jpg"}})
	ws.NoError(err)
	ws.svc.now = func() time.Time { return ws.now.Add(2 * time.Hour) }
	_, err = ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "second"})
	ws.NoError(err)

	tr, err := ws.svc.Track(ws.ctx, c.ClaimID)
	ws.NoError(err)
	ws.Equal("1234567", tr.PolicyNumber)
	ws.Len(tr.Updates, 2)
	ws.Equal("second", tr.Updates[0].Description)
	ws.Equal("first", tr.Updates[1].Description)
	// 10000 price, two installments paid: 7000 * 0.3 = 2100
	ws.True(tr.CurrentLimit.Equal(decimal.NewFromInt(2100)))
	ws.True(tr.RemainingLimit.Equal(decimal.NewFromInt(1600)))

	b, err := json.Marshal(tr)
	ws.NoError(err)
	var fields map[string]any
	ws.NoError(json.Unmarshal(b, &fields))
	ws.NotContains(fields, "id")
	ws.NotContains(fields, "warranty_id")
	ws.NotContains(string(b), c.ID)
}

func (ws *WorkflowSuite) Test_TrackFallsBackToClaimCosts() {
	c := ws.intake("w-approved")
	_, err := ws.svc.AddUpdate(ws.ctx, c.ClaimID, UpdateInput{Description: "x", Cost: decimal.NewFromInt(100), Images: []string{"a"}})
	ws.NoError(err)
	ws.warranties.byID["w-approved"].UsedCoverage = decimal.NullDecimal{}

	tr, err := ws.svc.Track(ws.ctx, c.ClaimID)
	ws.NoError(err)
	ws.True(tr.RemainingLimit.Equal(decimal.NewFromInt(2000)))
}

func (ws *WorkflowSuite) assertTotalMatchesUpdates(c *entity.Claim) {
	sum := decimal.Zero
	for _, u := range c.Updates {
		sum = sum.Add(u.Cost)
	}
	ws.True(c.TotalCost.Equal(sum), "total %s != sum %s", c.TotalCost, sum)
}

package preset

import (
	"context"
	"fmt"

	"github.com/AvaProtocol/userop-builder/pkg/erc4337/userop"
)

// sponsorshipShape is the operation a paymaster is asked about: dummy
// paymasterAndData and signature of the real sizes stand in so that the
// preVerificationGas computed here still holds once both are filled in.
func sponsorshipShape(op userop.UserOperation, overheads userop.GasOverheads) userop.UserOperation {
	shaped := op.
		WithPaymasterAndData(userop.DummyPaymasterAndData()).
		WithSignature(userop.DummySignature())
	return shaped.WithPreVerificationGas(userop.CalcPreVerificationGas(shaped, overheads))
}

// unsponsoredShape drops any paymaster data and prices preVerificationGas
// for the operation as it will be sent.
func unsponsoredShape(op userop.UserOperation, overheads userop.GasOverheads) userop.UserOperation {
	shaped := op.
		WithPaymasterAndData(nil).
		WithSignature(nil).
		WithPreVerificationGas(nil)
	return shaped.WithPreVerificationGas(userop.CalcPreVerificationGas(shaped, overheads))
}

// negotiateSponsorship returns the sponsored operation, or false when the paymaster declines.
func (b *Builder) negotiateSponsorship(ctx context.Context, provisional userop.UserOperation) (userop.UserOperation, bool, error) {
	shaped := sponsorshipShape(provisional, b.overheads)

	paymasterAndData, err := b.paymaster.Sponsor(ctx, shaped)
	if err != nil {
		b.metrics.IncSponsorship("error")
		return userop.UserOperation{}, false, fmt.Errorf("failed to get paymaster sponsorship: %w", err)
	}

	if len(paymasterAndData) == 0 {
		b.metrics.IncSponsorship("declined")
		b.logger.Info("paymaster declined sponsorship, sending unsponsored", "sender", provisional.Sender.Hex())
		return userop.UserOperation{}, false, nil
	}

	b.metrics.IncSponsorship("sponsored")
	return shaped.WithPaymasterAndData(paymasterAndData).WithSignature(nil), true, nil
}

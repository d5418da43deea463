package awsiam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/junki-kanda/AutGuardRails/pkg/executor"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
	"github.com/junki-kanda/AutGuardRails/pkg/policy/engine"
)

// Executor applies deny policies through the AWS IAM API.
type Executor struct {
	iam    IAMAPI
	sts    STSAPI
	logger *slog.Logger

	// mu guards the cached caller account
	mu      sync.Mutex
	account string
}

// New creates an executor backed by real AWS clients.
func New(cfg aws.Config) *Executor {
	return NewWithClients(iam.NewFromConfig(cfg), sts.NewFromConfig(cfg))
}

// NewWithClients creates an executor with explicit API implementations.
func NewWithClients(iamAPI IAMAPI, stsAPI STSAPI) *Executor {
	return &Executor{
		iam:    iamAPI,
		sts:    stsAPI,
		logger: slog.With("component", "awsiam-executor"),
	}
}

// Apply attaches the target's deny policy to its principal. A target whose
// actions never touch IAM is a no-op that still yields a diff for the
// ledger.
func (e *Executor) Apply(ctx context.Context, policyID string, target engine.PlanTarget) (*executor.Diff, error) {
	principal := target.Principal
	deny := target.DenyActions()
	if len(deny) == 0 {
		return &executor.Diff{
			Action:    policy.ActionNotifyOnly,
			Target:    principal.ARN,
			NoChanges: true,
		}, nil
	}

	name := executor.DenyPolicyName(policyID, deny)
	document, err := executor.DenyPolicyDocument(deny)
	if err != nil {
		return nil, executor.NewExecutionError(principal.ARN, "render_document", err)
	}

	policyARN, err := e.ensurePolicy(ctx, policyID, name, document, principal.ARN)
	if err != nil {
		return nil, err
	}
	if err := e.attach(ctx, principal, policyARN); err != nil {
		return nil, err
	}

	e.logger.Info("deny policy attached",
		"policy_id", policyID,
		"target", principal.ARN,
		"managed_policy", name,
		"denied_actions", len(deny))

	return &executor.Diff{
		Action:        policy.ActionAttachDenyPolicy,
		Target:        principal.ARN,
		TargetType:    principal.Type,
		TargetName:    principal.Name(),
		DeniedActions: deny,
		PolicyARN:     policyARN,
		PolicyName:    name,
	}, nil
}

// ensurePolicy creates the managed deny policy, reusing an existing one with
// the same name. The name embeds a digest of the deny set, so a policy that
// already exists under this name carries the same document we would have
// written.
func (e *Executor) ensurePolicy(ctx context.Context, policyID, name, document, target string) (string, error) {
	out, err := e.iam.CreatePolicy(ctx, &iam.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(document),
		Description:    aws.String("Cost guardrail deny policy for " + policyID),
		Tags: []iamtypes.Tag{
			{Key: aws.String("ManagedBy"), Value: aws.String("guardrails")},
			{Key: aws.String("GuardrailPolicyID"), Value: aws.String(policyID)},
		},
	})
	if err == nil {
		return aws.ToString(out.Policy.Arn), nil
	}

	var exists *iamtypes.EntityAlreadyExistsException
	if !errors.As(err, &exists) {
		return "", executor.NewExecutionError(target, "create_policy", err)
	}

	account, err := e.callerAccount(ctx)
	if err != nil {
		return "", executor.NewExecutionError(target, "resolve_account", err)
	}
	arn := managedPolicyARN(account, name)
	got, err := e.iam.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: aws.String(arn)})
	if err != nil {
		return "", executor.NewExecutionError(target, "get_policy", err)
	}
	return aws.ToString(got.Policy.Arn), nil
}

func (e *Executor) attach(ctx context.Context, principal policy.Principal, policyARN string) error {
	var err error
	switch principal.Type {
	case policy.PrincipalRole:
		_, err = e.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(principal.Name()),
			PolicyArn: aws.String(policyARN),
		})
	case policy.PrincipalUser:
		_, err = e.iam.AttachUserPolicy(ctx, &iam.AttachUserPolicyInput{
			UserName:  aws.String(principal.Name()),
			PolicyArn: aws.String(policyARN),
		})
	default:
		err = fmt.Errorf("unsupported principal type %q", principal.Type)
	}
	if err != nil {
		return executor.NewExecutionError(principal.ARN, "attach", err)
	}
	return nil
}

// Revert detaches the deny policy recorded in the diff and deletes the
// managed policy once nothing is attached to it anymore. Detaching an
// already detached policy and deleting an already deleted one both count as
// success, so a retried rollback converges.
func (e *Executor) Revert(ctx context.Context, diff *executor.Diff) error {
	if diff == nil {
		return errors.New("nil diff")
	}
	if diff.Action != policy.ActionAttachDenyPolicy || diff.DryRun || diff.NoChanges {
		return nil
	}
	if diff.PolicyARN == "" {
		return executor.NewExecutionError(diff.Target, "detach", errors.New("diff records no managed policy arn"))
	}

	if err := e.detach(ctx, diff); err != nil {
		return err
	}
	return e.deleteIfUnused(ctx, diff)
}

func (e *Executor) detach(ctx context.Context, diff *executor.Diff) error {
	var err error
	switch diff.TargetType {
	case policy.PrincipalRole:
		_, err = e.iam.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(diff.TargetName),
			PolicyArn: aws.String(diff.PolicyARN),
		})
	case policy.PrincipalUser:
		_, err = e.iam.DetachUserPolicy(ctx, &iam.DetachUserPolicyInput{
			UserName:  aws.String(diff.TargetName),
			PolicyArn: aws.String(diff.PolicyARN),
		})
	default:
		return executor.NewExecutionError(diff.Target, "detach", fmt.Errorf("unsupported principal type %q", diff.TargetType))
	}

	var notFound *iamtypes.NoSuchEntityException
	if err != nil && !errors.As(err, &notFound) {
		return executor.NewExecutionError(diff.Target, "detach", err)
	}
	return nil
}

// deleteIfUnused removes the managed policy unless another principal still
// has it attached. A shared policy stays until its last execution rolls
// back.
func (e *Executor) deleteIfUnused(ctx context.Context, diff *executor.Diff) error {
	var notFound *iamtypes.NoSuchEntityException

	got, err := e.iam.GetPolicy(ctx, &iam.GetPolicyInput{PolicyArn: aws.String(diff.PolicyARN)})
	if err != nil {
		if errors.As(err, &notFound) {
			return nil
		}
		return executor.NewExecutionError(diff.Target, "get_policy", err)
	}
	if count := aws.ToInt32(got.Policy.AttachmentCount); count > 0 {
		e.logger.Info("deny policy still attached elsewhere, keeping",
			"managed_policy", diff.PolicyName,
			"attachments", count)
		return nil
	}

	if _, err := e.iam.DeletePolicy(ctx, &iam.DeletePolicyInput{PolicyArn: aws.String(diff.PolicyARN)}); err != nil && !errors.As(err, &notFound) {
		return executor.NewExecutionError(diff.Target, "delete_policy", err)
	}

	e.logger.Info("deny policy detached and deleted",
		"target", diff.Target,
		"managed_policy", diff.PolicyName)
	return nil
}

// callerAccount resolves and caches the account the executor operates in.
func (e *Executor) callerAccount(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.account != "" {
		return e.account, nil
	}

	out, err := e.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	e.account = aws.ToString(out.Account)
	return e.account, nil
}

func managedPolicyARN(account, name string) string {
	return "arn:aws:iam::" + account + ":policy/" + name
}

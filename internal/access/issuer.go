package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Issue は新しいアクセスキーを発行してストアに永続化し、キー文字列を返す。
//
// 発行できるのはcallerTierがTierAdministratorの場合のみ。委譲は不可で、
// administrator以外はいかなるTierも発行できない。requestedTierとして
// 許可されるのはTierDeveloperとTierBasicのみ。administratorキーと
// unauthenticatedキーは発行経路を持たない。
//
// キーはUUID v4（128ビットのランダム値）で生成され、この戻り値以外から
// 取得する手段はない。永続化に失敗した場合はErrIssuanceFailedを返す。
// キー生成は失敗原因と独立なので、呼び出し元は新しいキーで再試行できる。
func Issue(ctx context.Context, store KeyStore, callerTier, requestedTier Tier, label string) (string, error) {
	if callerTier != TierAdministrator {
		return "", ErrNotAuthorized
	}
	if requestedTier != TierDeveloper && requestedTier != TierBasic {
		return "", fmt.Errorf("%w: %s", ErrInvalidTier, requestedTier)
	}

	key := uuid.New().String()
	if err := store.Insert(ctx, key, requestedTier, label); err != nil {
		return "", fmt.Errorf("%w: %s", ErrIssuanceFailed, err)
	}
	return key, nil
}

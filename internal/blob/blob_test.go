package blob

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TomaszGol/iOS-Messenger/internal/errs"
)

func TestPaths(t *testing.T) {
	require.Equal(t, "images/a-40b-2ecom_profile_picture.png", ProfileImagePath("a-40b-2ecom_profile_picture.png"))
	require.Equal(t, "message_images/x.png", MessageImagePath("x.png"))
	require.Equal(t, "message_videos/x.mov", MessageVideoPath("x.mov"))
}

func TestValidateFileName(t *testing.T) {
	require.NoError(t, ValidateFileName("photo_message_1.png"))
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		require.ErrorIs(t, ValidateFileName(bad), errs.ErrInvalidArgument, bad)
	}
}

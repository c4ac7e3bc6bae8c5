package tags

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainTag struct {
	Key   string
	Value string
	Extra int
}

func TestLookup(t *testing.T) {
	ec2Tags := []ec2types.Tag{
		{Key: aws.String("Name"), Value: aws.String("web")},
		{Key: aws.String("DaysCount"), Value: aws.String("2024-01-01@3")},
	}
	assert.Equal(t, "2024-01-01@3", Lookup(ec2Tags, "DaysCount"))
	assert.Equal(t, "", Lookup(ec2Tags, "daysCount"))
	assert.Equal(t, "", Lookup(ec2Tags, "Missing"))

	ptrTags := []*plainTag{{Key: "Skip", Value: "yes"}, nil}
	assert.Equal(t, "yes", Lookup(ptrTags, "Skip"))

	assert.Equal(t, "v", Lookup(map[string]string{"k": "v"}, "k"))
	assert.Equal(t, "v", Lookup(map[string]*string{"k": aws.String("v")}, "k"))
	assert.Equal(t, "", Lookup(map[string]*string{"k": nil}, "k"))

	assert.Equal(t, "", Lookup(nil, "k"))
	assert.Equal(t, "", Lookup([]ec2types.Tag(nil), "k"))
	assert.Equal(t, "", Lookup("not tags", "k"))
}

func TestToMap(t *testing.T) {
	got := ToMap([]iamtypes.Tag{
		{Key: aws.String("Owner"), Value: aws.String("alice")},
		{Key: aws.String("Policy"), Value: aws.String("skip")},
	})
	assert.Equal(t, map[string]string{"Owner": "alice", "Policy": "skip"}, got)

	assert.Equal(t, map[string]string{"a": "1"}, ToMap(map[string]*string{"a": aws.String("1")}))
	assert.Empty(t, ToMap(nil))
}

func TestSet_SliceReplacesAndAppends(t *testing.T) {
	orig := []ec2types.Tag{
		{Key: aws.String("Name"), Value: aws.String("web")},
		{Key: aws.String("DaysCount"), Value: aws.String("2024-01-01@3")},
	}

	updated := Set(orig, "DaysCount", "2024-01-02@4")
	require.Len(t, updated, 2)
	assert.Equal(t, "2024-01-02@4", Lookup(updated, "DaysCount"))
	assert.Equal(t, "2024-01-01@3", aws.ToString(orig[1].Value), "input must not be mutated")

	appended := Set(orig, "Policy", "skip")
	require.Len(t, appended, 3)
	assert.Equal(t, "skip", Lookup(appended, "Policy"))
	assert.Len(t, orig, 2)
}

func TestSet_SliceDropsDuplicateKeys(t *testing.T) {
	orig := []plainTag{
		{Key: "DaysCount", Value: "2024-01-01@3", Extra: 1},
		{Key: "Name", Value: "web"},
		{Key: "DaysCount", Value: "2024-01-05@6", Extra: 2},
	}

	updated := Set(orig, "DaysCount", "2024-03-10@0")
	require.Len(t, updated, 2)
	assert.Equal(t, plainTag{Key: "DaysCount", Value: "2024-03-10@0", Extra: 1}, updated[0])
	assert.Equal(t, "web", updated[1].Value)
	assert.Equal(t, "2024-03-10@0", ToMap(updated)["DaysCount"])
	assert.Len(t, orig, 3)
}

func TestSet_NilSlice(t *testing.T) {
	var none []ec2types.Tag
	got := Set(none, "DaysCount", "2024-01-02@1")
	require.Len(t, got, 1)
	assert.Equal(t, "DaysCount", aws.ToString(got[0].Key))
	assert.Nil(t, none)
}

func TestSet_PointerElementsCopied(t *testing.T) {
	orig := []*plainTag{{Key: "DaysCount", Value: "old", Extra: 7}}

	got := Set(orig, "DaysCount", "new")
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Value)
	assert.Equal(t, 7, got[0].Extra)
	assert.Equal(t, "old", orig[0].Value)
}

func TestSet_Maps(t *testing.T) {
	orig := map[string]string{"a": "1"}
	got := Set(orig, "b", "2")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
	assert.NotContains(t, orig, "b")

	ptrMap := Set(map[string]*string{}, "k", "v")
	assert.Equal(t, "v", aws.ToString(ptrMap["k"]))

	var nilMap map[string]string
	assert.Equal(t, map[string]string{"k": "v"}, Set(nilMap, "k", "v"))
}

func TestSet_UnsupportedUnchanged(t *testing.T) {
	assert.Equal(t, []int{1}, Set([]int{1}, "k", "v"))
	assert.Equal(t, "x", Set("x", "k", "v"))
}

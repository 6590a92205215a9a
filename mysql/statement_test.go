package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteNamedParamsOrderAndRewrite(t *testing.T) {
	rewritten, names := rewriteNamedParams("SELECT * FROM t WHERE a = :foo AND b = :bar AND c = :foo")
	require.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ? AND c = ?", rewritten)
	require.Equal(t, []string{"foo", "bar", "foo"}, names)
}

func TestRewriteNamedParamsIgnoresColonInsideQuotes(t *testing.T) {
	rewritten, names := rewriteNamedParams("SELECT ':literal' FROM t WHERE a = :x")
	require.Equal(t, "SELECT ':literal' FROM t WHERE a = ?", rewritten)
	require.Equal(t, []string{"x"}, names)
}

func TestRewriteNamedParamsNoOpForPositionalQuery(t *testing.T) {
	rewritten, names := rewriteNamedParams("SELECT * FROM t WHERE a = ?")
	require.Equal(t, "SELECT * FROM t WHERE a = ?", rewritten)
	require.Nil(t, names)
}

func TestResolvePositionalArgsMissingNamedParameter(t *testing.T) {
	stmt := &Statement{namedParams: []string{"foo", "bar"}}
	_, err := resolvePositionalArgs(stmt, map[string]interface{}{"foo": 1})

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, ErrMissingNamedParameter, protoErr.Code)
}

func TestResolvePositionalArgsRejectsNamedArgsOnPositionalStatement(t *testing.T) {
	stmt := &Statement{namedParams: nil}
	_, err := resolvePositionalArgs(stmt, map[string]interface{}{"foo": 1})

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Equal(t, ErrNamedParamsForPositionalQuery, protoErr.Code)
}

func TestStatementRefCountingClosesOnlyAtZero(t *testing.T) {
	stmt := &Statement{refCount: 1}
	stmt.retain()
	require.False(t, stmt.release())
	require.True(t, stmt.release())
}

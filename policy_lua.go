package convogen

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"
)

// ──────────────────────────────────────────────
// Lua Estimator — user-scriptable satisfaction scoring
// ──────────────────────────────────────────────
//
// Custom scoring rules without recompiling: a script defines
//
//	function estimate(reply, expectation, frustration_trigger, turn)
//	    return score, explanation   -- explanation optional
//	end
//
// and plugs in wherever a built-in Estimator would.

// LuaEstimator runs a Lua estimate() function per evaluated turn.
// Not safe for concurrent use; the loop is single-threaded by design.
type LuaEstimator struct {
	state    *lua.LState
	fallback float64
	log      *logrus.Entry
}

// NewLuaEstimator compiles the script and verifies it defines estimate().
// fallback is returned whenever the script errors at call time.
func NewLuaEstimator(script string, fallback float64, log *logrus.Entry) (*LuaEstimator, error) {
	if log == nil {
		log = discardLogger()
	}
	if fallback == 0 {
		fallback = 0.5
	}

	L := lua.NewState()
	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, configErrorf("lua estimator script: %v", err)
	}
	if _, ok := L.GetGlobal("estimate").(*lua.LFunction); !ok {
		L.Close()
		return nil, configErrorf("lua estimator script does not define estimate()")
	}

	return &LuaEstimator{state: L, fallback: fallback, log: log}, nil
}

// NewLuaEstimatorFromFile loads the script from disk.
func NewLuaEstimatorFromFile(path string, fallback float64, log *logrus.Entry) (*LuaEstimator, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf("read lua estimator script %s: %v", path, err)
	}
	return NewLuaEstimator(string(script), fallback, log)
}

// Estimate calls the script. A script error or a non-numeric score falls
// back to the configured neutral value; scripted failures never abort a
// conversation.
func (e *LuaEstimator) Estimate(ctx context.Context, history []Turn, exp *Expectation, turnIndex int) (float64, string) {
	reply := lastMessage(history, SpeakerChatbot)
	expectation, trigger := "", ""
	if exp != nil {
		expectation = exp.Expectation
		trigger = exp.FrustrationTrigger
	}

	L := e.state
	err := L.CallByParam(lua.P{
		Fn:      L.GetGlobal("estimate"),
		NRet:    2,
		Protect: true,
	}, lua.LString(reply), lua.LString(expectation), lua.LString(trigger), lua.LNumber(turnIndex))
	if err != nil {
		e.log.WithError(err).Warn("lua estimate() failed, using fallback score")
		return e.fallback, fmt.Sprintf("Scripted evaluation failed: %v", err)
	}

	explanationVal := L.Get(-1)
	scoreVal := L.Get(-2)
	L.Pop(2)

	score, ok := scoreVal.(lua.LNumber)
	if !ok {
		e.log.WithField("got", scoreVal.Type().String()).Warn("lua estimate() returned non-numeric score")
		return e.fallback, "Scripted evaluation returned a non-numeric score."
	}

	explanation := ""
	if s, ok := explanationVal.(lua.LString); ok {
		explanation = string(s)
	}
	return clamp(float64(score), 0.0, 1.0), explanation
}

// Close releases the Lua state.
func (e *LuaEstimator) Close() {
	e.state.Close()
}

package matchstats

// RosterRecordPath is the nested list that carries one roster entry per player.
const RosterRecordPath = "players"

// EventColumns is the projection applied to flattened event rows.
var EventColumns = []string{
	"period", "minute", "seconds", "matchId", "type",

	"swimoff.homeTeamSwimmer.playerId",
	"swimoff.homeTeamSwimmer.teamId",
	"swimoff.awayTeamSwimmer.teamId",
	"swimoff.awayTeamSwimmer.playerId",
	"swimoff.winnerSwimmer.teamId",
	"swimoff.winnerSwimmer.playerId",

	"shot.teamId",
	"shot.type",
	"shot.takenBy.playerId",
	"shot.takenBy.teamId",
	"shot.assistedBy.playerId",
	"shot.isGoal",
	"shot.isFastBreak",
	"shot.isDirectFromFoul",
	"shot.locationX",
	"shot.locationY",
	"shot.targetX",
	"shot.targetY",
	"shot.savedBy.playerId",
	"shot.savedBy.teamId",
	"shot.blockedBy.playerId",
	"shot.blockedBy.teamId",
	"shot.blockedBy.positionId",

	// upstream spells "possesion" with one s
	"turnover.teamId",
	"turnover.type",
	"turnover.lostPossesionPlayer.playerId",
	"turnover.lostPossesionPlayer.teamId",
	"turnover.wonPossesionPlayer.playerId",
	"turnover.wonPossesionPlayer.teamId",

	"exclusion.teamId",
	"exclusion.type",
	"exclusion.excludedPlayer.playerId",
	"exclusion.excludedPlayer.teamId",
	"exclusion.fouledPlayer.playerId",
	"exclusion.fouledPlayer.teamId",
	"exclusion.isPenaltyExclusion",
	"exclusion.isDoubleExclusion",
	"exclusion.locationX",
	"exclusion.locationY",

	"timeout.teamId",
}

// RosterColumns is the projection applied to flattened roster rows.
var RosterColumns = []string{
	"id",
	"player.id",
	"player.name",
	"player.surname",
	"player.height",
	"player.weight",
	"player.primaryPosition",
	"player.nationality",
	"team.id",
	"team.name",
	"team.shortName",
	"match.id",
	"match.homeTeamId",
	"match.awayTeamId",
}

// Event fields that must be non-negative when present.
var EventCounterColumns = []string{"period", "minute", "seconds"}

const EventMatchIDColumn = "matchId"

// Roster fields every retained roster row must carry.
var RosterIdentityColumns = []string{"player.id", "team.id", "match.id"}

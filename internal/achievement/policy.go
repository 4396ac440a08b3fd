package achievement

// XP awards for the two user actions.
const (
	VoteXP         = 5
	PollCreationXP = 20
)

// Milestones. Each one fires when the counter equals the value right after
// an increment, never on ">=".
const (
	FirstPollCount    = 1   // creator's total_polls_created
	ProlificPollCount = 10  // creator's total_polls_created
	VoteMasterVotes   = 10  // voter's total_votes_cast
	PopularPollVotes  = 50  // poll's total_votes
	ViralPollVotes    = 100 // poll's total_votes
)

// popularityTiers is ordered from the highest threshold down.
var popularityTiers = []struct {
	minVotes int
	bonus    int
}{
	{100, 100},
	{50, 50},
	{25, 25},
	{10, 10},
}

// PopularityBonus is the extra creator XP for a poll with totalVotes votes.
func PopularityBonus(totalVotes int) int {
	for _, tier := range popularityTiers {
		if totalVotes >= tier.minVotes {
			return tier.bonus
		}
	}
	return 0
}

// CreatorKindsForPollCount returns the kinds earned when a creator's
// total_polls_created becomes count.
func CreatorKindsForPollCount(count int) []Kind {
	switch count {
	case FirstPollCount:
		return []Kind{FirstPoll}
	case ProlificPollCount:
		return []Kind{ProlificCreator}
	}
	return nil
}

// VoterKindsForVoteCount returns the kinds earned when a voter's
// total_votes_cast becomes count.
func VoterKindsForVoteCount(count int) []Kind {
	if count == VoteMasterVotes {
		return []Kind{VoteMaster}
	}
	return nil
}

// CreatorKindsForPollVotes returns the kinds the poll's creator earns when the
// poll's total_votes becomes total.
func CreatorKindsForPollVotes(total int) []Kind {
	switch total {
	case PopularPollVotes:
		return []Kind{PopularCreator}
	case ViralPollVotes:
		return []Kind{ViralCreator}
	}
	return nil
}

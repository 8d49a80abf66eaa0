package rate

const (
	issueIPPrefix    = "lri:"
	pollTicketPrefix = "lrp:"
)

func issueIPKey(ip string) string {
	return issueIPPrefix + ip
}

func pollTicketKey(ticketID string) string {
	return pollTicketPrefix + ticketID
}

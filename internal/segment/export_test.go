package segment

func (r *Reassembler) PendingSegments() int {
	return len(r.pending)
}

package relation

// LoadOptions carries the caller's load request. The callback contract is
// inherited from the data-source layer: Success fires on a completed load
// (including empty results), Failure fires on store/transport errors, and
// Callback always fires last, after whichever of the two ran.
type LoadOptions struct {
	// Reload forces a fresh fetch even when the collection already
	// completed a load.
	Reload bool

	Success  func(c *Collection)
	Failure  func(err error)
	Callback func(c *Collection, err error)
}

// deliver invokes the configured callbacks for one settled load.
func (o LoadOptions) deliver(c *Collection, err error) {
	if err != nil {
		if o.Failure != nil {
			o.Failure(err)
		}
	} else if o.Success != nil {
		o.Success(c)
	}
	if o.Callback != nil {
		o.Callback(c, err)
	}
}
